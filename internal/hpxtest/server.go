// Package hpxtest provides an in-process server that speaks the hpx wire
// protocol, for use in tests.
package hpxtest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler serves one accepted connection. The connection is closed when
// Handle returns.
type Handler interface {
	Handle(conn *Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn *Conn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *Conn) { f(conn) }

// Server accepts connections and dispatches each to a Handler.
type Server struct {
	listener *net.TCPListener
	logger   *slog.Logger
	timeout  time.Duration

	group errgroup.Group

	mu       sync.Mutex
	shutdown bool
	conns    map[*Conn]struct{}
	accepted int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerTimeoutOption bounds every read and write on accepted
// connections. Default is 5s.
func ServerTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New creates a server bound to addr.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		conns:    make(map[*Conn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start serves h on a loopback port until the test ends.
func Start(tb testing.TB, h Handler, opts ...ServerOption) *Server {
	tb.Helper()

	s, err := New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, opts...)
	if err != nil {
		tb.Fatalf("failed to start test server: %v", err)
	}

	go func() { _ = s.Serve(context.Background(), h) }()
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// Serve accepts connections until ctx is canceled or Close is called.
// Each connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Debug("test server started", "addr", s.listener.Addr())

	quit := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	defer watcher.Wait()
	defer close(quit)

	go func() {
		defer watcher.Done()
		select {
		case <-ctx.Done():
		case <-quit:
			return
		}
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		raw, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Debug("test server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}

		_ = raw.SetNoDelay(true)
		conn := newConn(raw, s.timeout)
		if !s.dispatch(conn, handler) {
			_ = conn.Close()
		}
	}
}

// dispatch starts handler on conn unless the server is shutting down.
// Starting under the lock keeps Close from waiting on a group that is
// still growing.
func (s *Server) dispatch(conn *Conn, handler Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	s.accepted++

	s.group.Go(func() error {
		defer s.untrack(conn)
		handler.Handle(conn)
		return nil
	})
	return true
}

func (s *Server) untrack(conn *Conn) {
	_ = conn.Close()

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Close stops accepting, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	_ = s.group.Wait()
	return err
}

// Addr returns the listener's address.
func (s *Server) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

// Host returns the listener's IP as a string.
func (s *Server) Host() string {
	return s.Addr().IP.String()
}

// Port returns the listener's port.
func (s *Server) Port() int {
	return s.Addr().Port
}

// Responder greets each client with greeting and then answers every
// request with reply(req). A nil reply closes the connection.
func Responder(greeting any, reply func(req *Message) any) Handler {
	return HandlerFunc(func(conn *Conn) {
		if greeting != nil {
			if err := conn.Write(greeting); err != nil {
				return
			}
		}

		for {
			req, err := conn.Read()
			if err != nil {
				return
			}
			resp := reply(req)
			if resp == nil {
				return
			}
			if err := conn.Write(resp); err != nil {
				return
			}
		}
	})
}

// Greeting returns the message a server sends right after accepting.
func Greeting(version any, guestAllowed bool) *Message {
	return Reply(&Message{}, map[string]any{"version": version, "guest_allowed": guestAllowed})
}

// Reply builds a response to req carrying data.
func Reply(req *Message, data any) *Message {
	raw, err := jsonRaw(data)
	if err != nil {
		panic(err)
	}
	return &Message{Session: req.Session, Name: req.Name, Data: raw}
}

// ErrorReply builds a response to req carrying a structured error.
func ErrorReply(req *Message, code int, msg string) *Message {
	return &Message{Session: req.Session, Name: req.Name, Data: []byte("null"), Error: &Error{Code: code, Msg: msg}}
}
