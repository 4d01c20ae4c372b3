// Package control implements a client session on the Knot DNS control socket.
//
// A Session performs exactly one command exchange: it connects, sends one
// DATA frame followed by a BLOCK frame, then receives DATA and EXTRA frames
// until the daemon answers with its own BLOCK frame. Sessions are not safe
// for concurrent use and must not be shared; the channel is conversational
// and interleaved exchanges corrupt each other.
package control

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/domain"
	"github.com/haukened/knot-exporter/internal/knot/gateways/wire"
)

const (
	// DefaultTimeout bounds a whole exchange when Options.Timeout is unset.
	DefaultTimeout = 10 * time.Second

	network = "unix"
)

// State is the position of a Session in its lifecycle.
type State int

const (
	Disconnected State = iota
	Connected
	AwaitingReply
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case AwaitingReply:
		return "awaiting-reply"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DialFunc opens the control channel. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Session.
type Options struct {
	Timeout time.Duration
	// options to inject for testing purposes
	Dial   DialFunc
	Logger log.Logger
}

// Request is the single command a session sends. Empty optional fields are
// not transmitted.
type Request struct {
	Command string
	Zone    string
	Flags   string
	Filter  string
}

// Record returns the DATA frame carrying the request.
func (r Request) Record() domain.ControlRecord {
	fields := []domain.Field{{Index: domain.FieldCmd, Value: r.Command}}
	if r.Zone != "" {
		fields = append(fields, domain.Field{Index: domain.FieldZone, Value: r.Zone})
	}
	if r.Flags != "" {
		fields = append(fields, domain.Field{Index: domain.FieldFlags, Value: r.Flags})
	}
	if r.Filter != "" {
		fields = append(fields, domain.Field{Index: domain.FieldFilter, Value: r.Filter})
	}
	return domain.NewControlRecord(domain.FrameData, fields...)
}

// Session is one control channel conversation.
type Session struct {
	timeout time.Duration
	dial    DialFunc
	logger  log.Logger

	path    string
	conn    net.Conn
	enc     *wire.Encoder
	dec     *wire.Decoder
	state   State
	failure error
	stop    func() bool
	ctxErr  func() error
}

// NewSession returns a disconnected session.
func NewSession(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Session{
		timeout: opts.Timeout,
		dial:    opts.Dial,
		logger:  opts.Logger,
		state:   Disconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Connect opens the control socket at path. The whole exchange must finish
// within the session timeout or before ctx is done, whichever comes first;
// cancelling ctx unblocks any pending I/O.
func (s *Session) Connect(ctx context.Context, path string) error {
	if s.state != Disconnected {
		return fmt.Errorf("%w: connect while %s", domain.ErrSessionState, s.state)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	conn, err := s.dial(dialCtx, network, path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConnect, path, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s: set deadline: %w", domain.ErrConnect, path, err)
	}

	s.path = path
	s.conn = conn
	s.enc = wire.NewEncoder(conn)
	s.dec = wire.NewDecoder(conn)
	s.ctxErr = ctx.Err
	s.stop = context.AfterFunc(ctx, func() {
		// Forces blocked reads and writes to return.
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	s.state = Connected

	s.logger.Debug(map[string]any{
		"socket":   path,
		"deadline": deadline,
	}, "Control channel connected")
	return nil
}

// Send transmits req followed by the BLOCK frame that asks the daemon to
// answer.
func (s *Session) Send(req Request) error {
	if s.state != Connected {
		return fmt.Errorf("%w: send while %s", domain.ErrSessionState, s.state)
	}
	if req.Command == "" {
		return fmt.Errorf("%w: empty command", domain.ErrSend)
	}

	if err := s.enc.Encode(req.Record()); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSend, req.Command, err)
	}
	if err := s.enc.Encode(domain.NewControlRecord(domain.FrameBlock)); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSend, req.Command, err)
	}
	s.state = AwaitingReply

	s.logger.Debug(map[string]any{
		"socket":  s.path,
		"command": req.Command,
		"zone":    req.Zone,
	}, "Control command sent")
	return nil
}

// Receive blocks for the next frame of the reply. DATA and EXTRA frames are
// returned as they arrive; the BLOCK frame that ends the reply is returned
// as well and moves the session to Draining. Any error is final.
func (s *Session) Receive() (domain.ControlRecord, error) {
	if s.failure != nil {
		return domain.ControlRecord{}, s.failure
	}
	if s.state != AwaitingReply {
		return domain.ControlRecord{}, fmt.Errorf("%w: receive while %s", domain.ErrSessionState, s.state)
	}

	rec, err := s.dec.Decode()
	if err != nil {
		return domain.ControlRecord{}, s.fail(s.classify(err))
	}

	switch rec.Type {
	case domain.FrameData, domain.FrameExtra:
		s.logger.Debug(map[string]any{"record": rec.String()}, "Control record received")
		return rec, nil
	case domain.FrameBlock:
		s.state = Draining
		return rec, nil
	default:
		return domain.ControlRecord{}, s.fail(fmt.Errorf("%w: unexpected %s frame", domain.ErrProtocol, rec.Type))
	}
}

// Close ends the session with an END frame and releases the socket. It is
// safe to call more than once and on a session that never connected.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	prev := s.state
	s.state = Closed
	if s.conn == nil {
		return nil
	}
	if s.stop != nil {
		s.stop()
	}

	var err error
	if prev != Disconnected && s.failure == nil && s.ctxErr() == nil {
		err = multierr.Append(err, s.enc.Encode(domain.NewControlRecord(domain.FrameEnd)))
	}
	err = multierr.Append(err, s.conn.Close())
	if err != nil {
		return fmt.Errorf("closing control channel %s: %w", s.path, err)
	}
	s.logger.Debug(map[string]any{"socket": s.path}, "Control channel closed")
	return nil
}

func (s *Session) fail(err error) error {
	s.failure = err
	return err
}

// classify maps decoder failures onto the exchange error taxonomy. Malformed
// frames already wrap domain.ErrProtocol; everything else is channel I/O.
func (s *Session) classify(err error) error {
	if isProtocol(err) {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	if cerr := s.ctxErr(); cerr != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrReceive, s.path, cerr)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrReceive, s.path, err)
}
