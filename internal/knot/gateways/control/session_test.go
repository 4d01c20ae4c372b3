package control

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/domain"
	"github.com/haukened/knot-exporter/internal/knot/testing/fakeknot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLogger implements log.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Error(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Debug(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Warn(fields map[string]any, msg string)  { m.Called(fields, msg) }
func (m *MockLogger) Panic(fields map[string]any, msg string) { m.Called(fields, msg) }
func (m *MockLogger) Fatal(fields map[string]any, msg string) { m.Called(fields, msg) }

func testOptions() Options {
	return Options{Timeout: 2 * time.Second, Logger: log.NewNoopLogger()}
}

func zoneStatus() Request {
	return Request{Command: "zone-status"}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Disconnected:  "disconnected",
		Connected:     "connected",
		AwaitingReply: "awaiting-reply",
		Draining:      "draining",
		Closed:        "closed",
		State(9):      "state(9)",
	}
	for st, want := range cases {
		assert.Equal(t, want, st.String())
	}
}

func TestRequest_Record(t *testing.T) {
	rec := Request{Command: "zone-status", Zone: "example.com.", Filter: "+serial"}.Record()
	assert.Equal(t, domain.FrameData, rec.Type)
	assert.Equal(t, []domain.Field{
		{Index: domain.FieldCmd, Value: "zone-status"},
		{Index: domain.FieldZone, Value: "example.com."},
		{Index: domain.FieldFilter, Value: "+serial"},
	}, rec.Fields())

	bare := zoneStatus().Record()
	assert.Equal(t, 1, bare.Len())
	assert.False(t, bare.Has(domain.FieldFlags))
}

func TestSession_FullExchange(t *testing.T) {
	frames := append(fakeknot.ZoneStatus("example.com.", [2]string{"serial", "42"}, [2]string{"refresh", "+1h"}), fakeknot.Block())
	srv := fakeknot.Start(t, fakeknot.Script{Frames: frames})

	s := NewSession(testOptions())
	assert.Equal(t, Disconnected, s.State())

	require.NoError(t, s.Connect(context.Background(), srv.Path))
	assert.Equal(t, Connected, s.State())

	require.NoError(t, s.Send(zoneStatus()))
	assert.Equal(t, AwaitingReply, s.State())

	rec, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, domain.FrameData, rec.Type)
	typ, _ := rec.Get(domain.FieldType)
	assert.Equal(t, "serial", typ)

	rec, err = s.Receive()
	require.NoError(t, err)
	assert.Equal(t, domain.FrameExtra, rec.Type)

	rec, err = s.Receive()
	require.NoError(t, err)
	assert.Equal(t, domain.FrameBlock, rec.Type)
	assert.Equal(t, Draining, s.State())

	_, err = s.Receive()
	assert.ErrorIs(t, err, domain.ErrSessionState)

	require.NoError(t, s.Close())
	assert.Equal(t, Closed, s.State())
	require.NoError(t, s.Close(), "close is idempotent")

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0], 1)
	cmd, ok := reqs[0][0].Get(domain.FieldCmd)
	assert.True(t, ok)
	assert.Equal(t, "zone-status", cmd)
	assert.Equal(t, 1, reqs[0][0].Len())

	assert.Eventually(t, func() bool { return srv.Ends() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_StateGuards(t *testing.T) {
	s := NewSession(testOptions())

	err := s.Send(zoneStatus())
	assert.ErrorIs(t, err, domain.ErrSessionState, "send before connect")

	_, err = s.Receive()
	assert.ErrorIs(t, err, domain.ErrSessionState, "receive before send")

	require.NoError(t, s.Close(), "close without connect")
	assert.Equal(t, Closed, s.State())

	err = s.Connect(context.Background(), "/nonexistent/knot.sock")
	assert.ErrorIs(t, err, domain.ErrSessionState, "connect after close")

	err = s.Send(zoneStatus())
	assert.ErrorIs(t, err, domain.ErrSessionState, "send after close")
}

func TestSession_SendRequiresCommand(t *testing.T) {
	srv := fakeknot.Start(t)
	s := NewSession(testOptions())
	require.NoError(t, s.Connect(context.Background(), srv.Path))
	defer s.Close()

	err := s.Send(Request{})
	assert.ErrorIs(t, err, domain.ErrSend)
	assert.Equal(t, Connected, s.State())
}

func TestSession_ConnectFailure(t *testing.T) {
	s := NewSession(testOptions())
	err := s.Connect(context.Background(), fakeknot.SocketPath(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnect)
	assert.Equal(t, Disconnected, s.State())
}

func TestSession_InjectedDial(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	var gotNetwork, gotAddr string
	opts := testOptions()
	opts.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		gotNetwork, gotAddr = network, address
		return client, nil
	}

	s := NewSession(opts)
	require.NoError(t, s.Connect(context.Background(), "/run/knot/knot.sock"))
	assert.Equal(t, "unix", gotNetwork)
	assert.Equal(t, "/run/knot/knot.sock", gotAddr)

	_ = server.Close()
	assert.Error(t, s.Close(), "END cannot be written to a closed pipe")
	assert.Equal(t, Closed, s.State())
}

func TestSession_DialError(t *testing.T) {
	opts := testOptions()
	opts.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, errors.New("permission denied")
	}
	err := NewSession(opts).Connect(context.Background(), "/run/knot/knot.sock")
	assert.ErrorIs(t, err, domain.ErrConnect)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSession_ProtocolViolations(t *testing.T) {
	cases := []struct {
		name   string
		script fakeknot.Script
	}{
		{
			name:   "unknown frame type",
			script: fakeknot.Script{Raw: []byte{0x07}},
		},
		{
			name:   "END instead of BLOCK",
			script: fakeknot.Script{Frames: []domain.ControlRecord{domain.NewControlRecord(domain.FrameEnd)}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeknot.Start(t, tc.script)
			s := NewSession(testOptions())
			require.NoError(t, s.Connect(context.Background(), srv.Path))
			defer s.Close()
			require.NoError(t, s.Send(zoneStatus()))

			_, err := s.Receive()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrProtocol)
			assert.NotErrorIs(t, err, domain.ErrReceive)

			_, again := s.Receive()
			assert.Equal(t, err, again, "failure is sticky")
		})
	}
}

func TestSession_ReplyWithoutBlock(t *testing.T) {
	srv := fakeknot.Start(t, fakeknot.Script{
		Frames: fakeknot.ZoneStatus("example.com.", [2]string{"serial", "42"}),
		Hangup: true,
	})
	s := NewSession(testOptions())
	require.NoError(t, s.Connect(context.Background(), srv.Path))
	defer s.Close()
	require.NoError(t, s.Send(zoneStatus()))

	rec, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, domain.FrameData, rec.Type)

	_, err = s.Receive()
	assert.ErrorIs(t, err, domain.ErrReceive)
}

func TestSession_ContextCancelUnblocksReceive(t *testing.T) {
	srv := fakeknot.Start(t, fakeknot.Script{Stall: true})

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(Options{Timeout: time.Minute, Logger: log.NewNoopLogger()})
	require.NoError(t, s.Connect(ctx, srv.Path))
	require.NoError(t, s.Send(zoneStatus()))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrReceive)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return after cancellation")
	}
	assert.NoError(t, s.Close())
}

func TestSession_TimeoutUnblocksReceive(t *testing.T) {
	srv := fakeknot.Start(t, fakeknot.Script{Stall: true})

	s := NewSession(Options{Timeout: 50 * time.Millisecond, Logger: log.NewNoopLogger()})
	require.NoError(t, s.Connect(context.Background(), srv.Path))
	defer s.Close()
	require.NoError(t, s.Send(zoneStatus()))

	start := time.Now()
	_, err := s.Receive()
	assert.ErrorIs(t, err, domain.ErrReceive)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSession_LogsConnectAndClose(t *testing.T) {
	srv := fakeknot.Start(t)
	logger := &MockLogger{}
	logger.On("Debug", mock.Anything, mock.Anything).Return()

	s := NewSession(Options{Timeout: time.Second, Logger: logger})
	require.NoError(t, s.Connect(context.Background(), srv.Path))
	require.NoError(t, s.Close())

	logger.AssertCalled(t, "Debug", mock.MatchedBy(func(f map[string]any) bool {
		return f["socket"] == srv.Path
	}), "Control channel connected")
	logger.AssertCalled(t, "Debug", mock.Anything, "Control channel closed")
}
