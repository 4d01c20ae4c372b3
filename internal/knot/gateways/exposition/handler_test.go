package exposition

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/domain"
	"github.com/haukened/knot-exporter/internal/knot/services/zonestatus"
	"github.com/haukened/knot-exporter/internal/knot/testing/fakeknot"
)

type MockCollector struct {
	mock.Mock
}

func (m *MockCollector) Collect(ctx context.Context) (*domain.MetricRegistry, error) {
	args := m.Called(ctx)
	reg, _ := args.Get(0).(*domain.MetricRegistry)
	return reg, args.Error(1)
}

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Error(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Debug(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Warn(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Panic(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Fatal(fields map[string]any, msg string) { m.Called(fields, msg) }

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHandler_ServesRegistry(t *testing.T) {
	c := &MockCollector{}
	c.On("Collect", mock.Anything).Return(testRegistry(t), nil)

	code, body := scrape(t, NewHandler(c, log.NewNoopLogger()), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `knot_dns_serial{zone="example.com."} 42`)
	assert.Contains(t, body, `knot_dns_dnssec_re_sign{zone="example.com."} -1`)
	c.AssertNumberOfCalls(t, "Collect", 1)
}

func TestHandler_ScrapesEveryRequest(t *testing.T) {
	c := &MockCollector{}
	c.On("Collect", mock.Anything).Return(domain.NewMetricRegistry(), nil)
	h := NewHandler(c, log.NewNoopLogger())

	for i := 0; i < 3; i++ {
		code, _ := scrape(t, h, "/metrics")
		assert.Equal(t, http.StatusOK, code)
	}
	c.AssertNumberOfCalls(t, "Collect", 3)
}

func TestHandler_CollectError(t *testing.T) {
	c := &MockCollector{}
	c.On("Collect", mock.Anything).Return(nil, errors.New("zone-status: connect refused"))

	logger := &MockLogger{}
	logger.On("Error", mock.MatchedBy(func(f map[string]any) bool {
		return f["path"] == "/metrics" && f["error"] != nil
	}), "Scrape failed").Once()

	code, body := scrape(t, NewHandler(c, logger), "/metrics")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "connect refused")
	logger.AssertExpectations(t)
}

func TestHandler_RecoversWhenDaemonReturns(t *testing.T) {
	path := fakeknot.SocketPath(t)
	collector, err := zonestatus.NewCollector(zonestatus.Options{
		Socket:  path,
		Timeout: 2 * time.Second,
		Logger:  log.NewNoopLogger(),
	})
	require.NoError(t, err)
	h := NewHandler(collector, log.NewNoopLogger())

	code, _ := scrape(t, h, "/metrics")
	assert.Equal(t, http.StatusInternalServerError, code, "daemon not listening yet")

	fakeknot.StartAt(t, path, fakeknot.Script{
		Frames: append(fakeknot.ZoneStatus("example.com.", [2]string{"serial", "42"}), fakeknot.Block()),
	})

	code, body := scrape(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `knot_dns_serial{zone="example.com."} 42`)
}

func TestPromLogger(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Error", map[string]any(nil), "error encoding metric family").Once()
	promLogger{logger}.Println("error encoding ", "metric family")
	logger.AssertExpectations(t)
}

func TestNewMux(t *testing.T) {
	c := &MockCollector{}
	c.On("Collect", mock.Anything).Return(testRegistry(t), nil)
	mux := NewMux("/metrics", NewHandler(c, log.NewNoopLogger()))

	code, body := scrape(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = scrape(t, mux, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `href="/metrics"`)

	code, _ = scrape(t, mux, "/nope")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = scrape(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "knot_dns_serial")
}
