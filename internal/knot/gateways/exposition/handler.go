package exposition

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// Collector produces one registry per call.
type Collector interface {
	Collect(ctx context.Context) (*domain.MetricRegistry, error)
}

// Handler serves a fresh scrape on every request. A failed scrape answers
// 500 for that request only.
type Handler struct {
	collector Collector
	logger    log.Logger
}

// NewHandler returns a Handler scraping through c.
func NewHandler(c Collector, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Handler{collector: c, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reg, err := h.collector.Collect(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pr, err := NewGatherer(reg)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	promhttp.HandlerFor(pr, promhttp.HandlerOpts{
		ErrorLog:      promLogger{h.logger},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}).ServeHTTP(w, r)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error(map[string]any{
		"remote": r.RemoteAddr,
		"path":   r.URL.Path,
		"error":  err,
	}, "Scrape failed")
	http.Error(w, fmt.Sprintf("scrape failed: %v", err), http.StatusInternalServerError)
}

// promLogger adapts Logger to promhttp.Logger.
type promLogger struct {
	logger log.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Error(nil, fmt.Sprint(v...))
}

const landingPage = `<html>
<head><title>Knot DNS Exporter</title></head>
<body>
<h1>Knot DNS Exporter</h1>
<p><a href="%s">Metrics</a></p>
</body>
</html>
`

// NewMux routes metricsPath to h, /healthz to a liveness probe and / to a
// small landing page.
func NewMux(metricsPath string, h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsPath != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, landingPage, metricsPath)
		})
	}
	return mux
}
