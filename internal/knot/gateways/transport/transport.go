// Package transport runs the HTTP listener the exporter is scraped through.
package transport

import (
	"context"
	"net/http"
)

// ServerTransport is a network listener serving an http.Handler.
type ServerTransport interface {
	// Start binds the listener and begins serving handler. It returns once
	// the listener is bound; serving continues until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context, handler http.Handler) error

	// Stop shuts the listener down, letting in-flight requests finish.
	Stop() error

	// Address returns the bound address, or the configured one before Start.
	Address() string
}
