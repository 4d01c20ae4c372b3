// Package clock abstracts wall time so scrape timing and socket deadlines can
// be driven from tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually advanced clock, safe for use from the goroutines
// an HTTP handler spawns.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = c.CurrentTime.Add(d)
}
