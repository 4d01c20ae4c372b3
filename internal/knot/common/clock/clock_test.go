package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	after := time.Now()

	assert.False(t, now.Before(before), "clock time %v before %v", now, before)
	assert.False(t, now.After(after), "clock time %v after %v", now, after)
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: start}

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, 90*time.Second, Since(c, start))
}

func TestMockClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: start}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(50*time.Second), c.Now())
}
