package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
)

const (
	defaultShutdownTimeout   = 5 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// HTTPTransport implements ServerTransport over TCP. At most maxConns
// connections are served at once; further clients wait in the accept queue.
type HTTPTransport struct {
	addr     string
	maxConns int
	logger   log.Logger

	// ShutdownTimeout bounds how long Stop waits for in-flight scrapes.
	ShutdownTimeout time.Duration

	mu      sync.Mutex
	running bool
	ln      net.Listener
	srv     *http.Server
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewHTTPTransport creates a transport for addr. A maxConns below 1 means
// no limit.
func NewHTTPTransport(addr string, maxConns int, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &HTTPTransport{
		addr:            addr,
		maxConns:        maxConns,
		logger:          logger,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Start binds the listener and serves handler in the background.
func (t *HTTPTransport) Start(ctx context.Context, handler http.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("HTTP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}
	if t.maxConns > 0 {
		ln = netutil.LimitListener(ln, t.maxConns)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), t.ShutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	})

	t.ln = ln
	t.srv = srv
	t.cancel = cancel
	t.group = g
	t.running = true

	t.logger.Info(map[string]any{
		"transport":       "http",
		"address":         ln.Addr().String(),
		"max_connections": t.maxConns,
	}, "HTTP transport started")

	return nil
}

// Wait blocks until the transport has stopped serving, either through Stop
// or through cancellation of the context given to Start.
func (t *HTTPTransport) Wait() error {
	t.mu.Lock()
	g := t.group
	t.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// Stop shuts the server down and waits for it to finish.
func (t *HTTPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel, g := t.cancel, t.group
	t.mu.Unlock()

	cancel()
	err := g.Wait()
	if err != nil {
		t.logger.Warn(map[string]any{
			"error": err,
		}, "Error stopping HTTP transport")
	}

	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   t.Address(),
	}, "HTTP transport stopped")

	return err
}

// Address returns the bound address once started, else the configured one.
func (t *HTTPTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}
