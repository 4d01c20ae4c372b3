// Package fakeknot runs a scripted Knot control socket for tests.
package fakeknot

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/haukened/knot-exporter/internal/knot/domain"
	"github.com/haukened/knot-exporter/internal/knot/gateways/wire"
)

// Script describes how the fake daemon answers one connection.
type Script struct {
	// Frames are written once the request block has been read. Include the
	// terminating BLOCK frame unless the test wants a truncated reply.
	Frames []domain.ControlRecord
	// Raw bytes are written after Frames.
	Raw []byte
	// Stall keeps the connection open without answering until the server
	// is closed.
	Stall bool
	// Hangup closes the connection right after the reply instead of waiting
	// for the client's END frame.
	Hangup bool
}

// Server is a fake daemon listening on a unix socket.
type Server struct {
	Path string

	ln      net.Listener
	scripts []Script
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	conns    int
	requests [][]domain.ControlRecord
	ends     int
}

// SocketPath returns a fresh socket path short enough for sun_path.
func SocketPath(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "knot")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "knot.sock")
}

// Start listens on a new socket. Connection n is answered with scripts[n],
// or with the last script once they run out.
func Start(t testing.TB, scripts ...Script) *Server {
	t.Helper()
	return StartAt(t, SocketPath(t), scripts...)
}

// StartAt is Start on a caller chosen path.
func StartAt(t testing.TB, path string, scripts ...Script) *Server {
	t.Helper()
	if len(scripts) == 0 {
		scripts = []Script{{Frames: []domain.ControlRecord{domain.NewControlRecord(domain.FrameBlock)}}}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}
	s := &Server{
		Path:    path,
		ln:      ln,
		scripts: scripts,
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Close stops the listener and every open connection.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	_ = s.ln.Close()
	s.wg.Wait()
}

// Conns returns the number of accepted connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Requests returns the request frames received on each connection, without
// the terminating BLOCK.
func (s *Server) Requests() [][]domain.ControlRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.ControlRecord, len(s.requests))
	copy(out, s.requests)
	return out
}

// Ends returns how many clients said goodbye with an END frame.
func (s *Server) Ends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		n := s.conns
		s.conns++
		s.mu.Unlock()

		script := s.scripts[min(n, len(s.scripts)-1)]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			finished := make(chan struct{})
			go func() {
				select {
				case <-s.done:
					_ = conn.Close()
				case <-finished:
				}
			}()
			s.serve(conn, script)
			close(finished)
			_ = conn.Close()
		}()
	}
}

func (s *Server) serve(conn net.Conn, script Script) {
	dec := wire.NewDecoder(conn)

	var req []domain.ControlRecord
	for {
		rec, err := dec.Decode()
		if err != nil {
			s.record(req)
			return
		}
		if rec.Type == domain.FrameBlock {
			break
		}
		req = append(req, rec)
	}
	s.record(req)

	if script.Stall {
		<-s.done
		return
	}

	enc := wire.NewEncoder(conn)
	for _, f := range script.Frames {
		if err := enc.Encode(f); err != nil {
			return
		}
	}
	if err := enc.Flush(); err != nil {
		return
	}
	if len(script.Raw) > 0 {
		if _, err := conn.Write(script.Raw); err != nil {
			return
		}
	}
	if script.Hangup {
		return
	}

	for {
		rec, err := dec.Decode()
		if err != nil {
			return
		}
		if rec.Type == domain.FrameEnd {
			s.mu.Lock()
			s.ends++
			s.mu.Unlock()
			return
		}
	}
}

func (s *Server) record(req []domain.ControlRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

// ZoneStatus builds the DATA/EXTRA frames the daemon sends for one zone's
// fields, in the given order, without a terminating BLOCK.
func ZoneStatus(zone string, fields ...[2]string) []domain.ControlRecord {
	out := make([]domain.ControlRecord, 0, len(fields))
	for i, f := range fields {
		ft := domain.FrameExtra
		if i == 0 {
			ft = domain.FrameData
		}
		out = append(out, domain.NewControlRecord(ft,
			domain.Field{Index: domain.FieldZone, Value: zone},
			domain.Field{Index: domain.FieldType, Value: f[0]},
			domain.Field{Index: domain.FieldData, Value: f[1]},
		))
	}
	return out
}

// Block is the frame that terminates a reply.
func Block() domain.ControlRecord {
	return domain.NewControlRecord(domain.FrameBlock)
}
