package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/knot-exporter/internal/knot/common/clock"
	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/config"
	"github.com/haukened/knot-exporter/internal/knot/gateways/exposition"
	"github.com/haukened/knot-exporter/internal/knot/gateways/transport"
	"github.com/haukened/knot-exporter/internal/knot/services/zonestatus"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "knot-exporterd"
)

// Application holds all the components of the exporter
type Application struct {
	config    *config.AppConfig
	transport *transport.HTTPTransport
	handler   *exposition.Handler
	metrics   string
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":             appName,
		"version":         version,
		"env":             cfg.Env,
		"log_level":       cfg.LogLevel,
		"socket":          cfg.Socket,
		"listen":          cfg.Listen,
		"metrics_path":    cfg.MetricsPath,
		"timeout":         cfg.Timeout.String(),
		"max_connections": cfg.MaxConnections,
		"zone":            cfg.Zone,
	}, "Starting Knot DNS exporter")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Exporter failed")
	}

	log.Info(nil, "Knot DNS exporter stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	collector, err := zonestatus.NewCollector(zonestatus.Options{
		Socket:  cfg.Socket,
		Zone:    cfg.Zone,
		Timeout: cfg.Timeout,
		Clock:   clock.RealClock{},
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build collector: %w", err)
	}

	return &Application{
		config:    cfg,
		transport: transport.NewHTTPTransport(cfg.Listen, cfg.MaxConnections, logger),
		handler:   exposition.NewHandler(collector, logger),
		metrics:   cfg.MetricsPath,
	}, nil
}

// Run serves scrapes and blocks until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	mux := exposition.NewMux(app.metrics, app.handler)
	if err := app.transport.Start(ctx, mux); err != nil {
		return fmt.Errorf("failed to start HTTP transport: %w", err)
	}

	log.Info(map[string]any{
		"address": app.transport.Address(),
		"path":    app.metrics,
		"socket":  app.config.Socket,
	}, "Exporter listening")

	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")

	if err := app.transport.Stop(); err != nil {
		return fmt.Errorf("transport shutdown: %w", err)
	}
	return nil
}
