package domain

import "errors"

// Control exchange failures. Callers wrap these with context and test for
// them with errors.Is.
var (
	// ErrConnect means the control socket could not be reached.
	ErrConnect = errors.New("control connect failed")
	// ErrSend means a request frame could not be written.
	ErrSend = errors.New("control send failed")
	// ErrReceive means the channel failed or closed before the reply ended.
	ErrReceive = errors.New("control receive failed")
	// ErrProtocol means the daemon sent something the protocol does not allow.
	ErrProtocol = errors.New("control protocol violation")
	// ErrDaemon means the daemon answered with an error message.
	ErrDaemon = errors.New("daemon reported error")
	// ErrSessionState means a session method was called out of order.
	ErrSessionState = errors.New("invalid control session state")
)

// Registry failures.
var (
	ErrDuplicateSeries    = errors.New("duplicate series")
	ErrInconsistentFamily = errors.New("inconsistent metric family")
	ErrInvalidMetric      = errors.New("invalid metric")
)
