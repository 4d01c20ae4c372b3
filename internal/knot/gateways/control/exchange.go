package control

import (
	"context"
	"errors"

	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// RecordFunc consumes one DATA or EXTRA record of a reply, in arrival order.
// Returning an error aborts the exchange.
type RecordFunc func(rec domain.ControlRecord) error

// Exchange runs one complete command exchange against the socket at path:
// connect, send req, hand every reply record to fn until the terminating
// BLOCK frame, and close. The channel is released on every return path.
// Close failures happen after the reply is complete and are only logged.
func Exchange(ctx context.Context, opts Options, path string, req Request, fn RecordFunc) error {
	s := NewSession(opts)
	if err := s.Connect(ctx, path); err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn(map[string]any{
				"socket": path,
				"error":  err,
			}, "Failed to close control channel")
		}
	}()

	if err := s.Send(req); err != nil {
		return err
	}

	for {
		rec, err := s.Receive()
		if err != nil {
			return err
		}
		if rec.Type == domain.FrameBlock {
			return nil
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func isProtocol(err error) bool {
	return errors.Is(err, domain.ErrProtocol)
}
