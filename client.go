// Package hpx implements a client for a stateful server that speaks
// gzip-compressed JSON envelopes over a single TCP (optionally TLS)
// connection. Messages are delimited by "<EOF>" on the wire.
//
// A Client owns exactly one connection and progresses through
// Disconnected, Connected, Authenticated and the terminal Closed state.
// It never reconnects on its own and performs no retries. A Client is not
// safe for concurrent use: callers must keep at most one request in flight.
package hpx

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// State is the connection state of a Client.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	// StateConnected means the socket is open but the server has not
	// accepted the client yet.
	StateConnected
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Dialer opens the transport connection. *net.Dialer and *tls.Dialer both
// satisfy it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

func newDialer(config *tls.Config, timeout time.Duration) Dialer {
	nd := &net.Dialer{Timeout: timeout}
	if config != nil {
		return &tls.Dialer{NetDialer: nd, Config: config}
	}
	return nd
}

// Client is a connection to one server.
type Client struct {
	name   string
	opts   options
	logger Logger

	metrics *metrics
	tracer  trace.Tracer

	conn  net.Conn
	buf   []byte // bytes read but not yet consumed
	chunk []byte // scratch space for a single read

	state        State
	session      string
	info         ServerInfo
	ready        bool
	lastUser     string
	lastPassword string
}

// New creates a client identified by name. The connection is not opened
// until Connect is called.
func New(name string, opt ...Option) (*Client, error) {
	if name == "" {
		return nil, newError(CodeClient, "hpx", "client name is required", nil)
	}

	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := checkOptions(&opts); err != nil {
		return nil, newError(CodeClient, name, err.Error(), err)
	}

	m, err := newMetrics(opts.registerer, name)
	if err != nil {
		return nil, newError(CodeClient, name, err.Error(), err)
	}

	return &Client{
		name:    name,
		opts:    opts,
		logger:  clientLogger{Logger: opts.logger, name: name},
		metrics: m,
		tracer:  newTracer(opts.tracerProvider),
		chunk:   make([]byte, opts.readBufferSize),
		session: opts.session,
	}, nil
}

func checkPort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.Errorf("invalid port %d", port)
	}
	return nil
}

// Name returns the client identity sent in every envelope.
func (c *Client) Name() string { return c.name }

// Session returns the current session token. It is empty before the
// first successful handshake unless one was supplied with SessionOption.
func (c *Client) Session() string { return c.session }

// State returns the connection state.
func (c *Client) State() State { return c.state }

// Alive reports whether the connection with the server is open.
func (c *Client) Alive() bool {
	return c.state == StateConnected || c.state == StateAuthenticated
}

// Ready reports whether the connection is open and the server has
// advertised its version.
func (c *Client) Ready() bool { return c.Alive() && c.ready }

// Accepted reports whether the server has accepted this client.
func (c *Client) Accepted() bool { return c.state == StateAuthenticated }

// Version returns the raw version value advertised by the server, or nil.
func (c *Client) Version() json.RawMessage { return c.info.Version }

// GuestAllowed reports whether the server admits unauthenticated clients.
func (c *Client) GuestAllowed() bool { return c.info.GuestAllowed }

// ServerInfo returns the last server metadata snapshot.
func (c *Client) ServerInfo() ServerInfo { return c.info }

// Host returns the configured server host.
func (c *Client) Host() string { return c.opts.host }

// Port returns the configured server port.
func (c *Client) Port() int { return c.opts.port }

// Addr returns the host:port the client dials.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.opts.host, strconv.Itoa(c.opts.port))
}

// SetHost changes the server host. It fails unless the client is disconnected.
func (c *Client) SetHost(host string) error {
	if c.state != StateDisconnected {
		return newError(CodeClient, c.name, "cannot change host while "+c.state.String(), nil)
	}
	if host == "" {
		host = defaultHost
	}
	c.opts.host = host
	return nil
}

// SetPort changes the server port. It fails unless the client is disconnected.
func (c *Client) SetPort(port int) error {
	if c.state != StateDisconnected {
		return newError(CodeClient, c.name, "cannot change port while "+c.state.String(), nil)
	}
	if err := checkPort(port); err != nil {
		return newError(CodeClient, c.name, err.Error(), err)
	}
	c.opts.port = port
	return nil
}

// ClearCredentials forgets the credentials cached by a previous handshake.
func (c *Client) ClearCredentials() {
	c.lastUser = ""
	c.lastPassword = ""
}

// ConnectTo sets the host and port and then connects.
func (c *Client) ConnectTo(ctx context.Context, host string, port int) error {
	if c.state == StateClosed {
		return c.closedError()
	}
	if !c.Alive() {
		if err := c.SetHost(host); err != nil {
			return err
		}
		if err := c.SetPort(port); err != nil {
			return err
		}
	}
	return c.Connect(ctx)
}

// Connect opens the connection and reads the server's greeting. It is a
// no-op when the client is already connected and fails with a ClientError
// once the client has been closed.
func (c *Client) Connect(ctx context.Context) (err error) {
	if c.state == StateClosed {
		return c.closedError()
	}
	if c.Alive() {
		return nil
	}

	ctx, span := c.startSpan(ctx, "hpx.Connect")
	defer func() {
		c.metrics.observeConnect(err)
		endSpan(span, err)
	}()

	c.logger.Info("client connecting to server", "addr", c.Addr())

	conn, err := c.opts.dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		if isAlreadyConnected(err) && c.session != "" && conn != nil {
			c.logger.Debug("socket already connected, reusing session", "addr", c.Addr())
			c.attach(conn)
			return nil
		}
		if conn != nil {
			_ = conn.Close()
		}
		c.disconnect(err)
		return newError(CodeServerDisconnect, c.name, err.Error(), err)
	}
	c.attach(conn)

	greeting, err := c.receiveGreeting(ctx)
	if err != nil {
		return err
	}
	if greeting != nil {
		c.recordServerInfo(greeting)
	}

	if c.session != "" {
		c.state = StateAuthenticated
	}
	c.logger.Info("client connected", "addr", c.Addr(), "state", c.state.String())
	return nil
}

// attach adopts conn as the live connection.
func (c *Client) attach(conn net.Conn) {
	c.conn = conn
	c.buf = c.buf[:0]
	c.state = StateConnected
}

// receiveGreeting reads the server's first message. A malformed envelope
// is logged and ignored; transport failures are ServerDisconnectErrors.
func (c *Client) receiveGreeting(ctx context.Context) (*Envelope, error) {
	payload, _, err := c.receive(ctx)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Code == CodeConnection {
			return nil, newError(CodeServerDisconnect, c.name, e.Msg, e.cause)
		}
		return nil, err
	}

	env, err := Parse(c.name, payload)
	if err != nil {
		c.logger.Warn("ignoring malformed server greeting", "error", err)
		return nil, nil
	}
	return env, nil
}

// recordServerInfo stores server metadata when env carries it.
func (c *Client) recordServerInfo(env *Envelope) {
	info, ok := env.ServerInfo()
	if !ok {
		return
	}
	c.info = info
	c.ready = true
	c.logger.Debug("server info", "version", string(info.Version), "guest_allowed", info.GuestAllowed)
}

// isAlreadyConnected reports whether err is the OS-level "socket is
// already connected" condition.
func isAlreadyConnected(err error) bool {
	return errors.Is(err, syscall.EISCONN)
}

// disconnect releases the socket after a transport failure. The session
// token and cached credentials survive so the caller may reconnect.
func (c *Client) disconnect(cause error) {
	wasAlive := c.Alive()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.buf = nil
	c.ready = false
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	if wasAlive {
		c.metrics.observeDisconnect()
		c.logger.Info("client disconnected", "addr", c.Addr(), "error", cause)
	}
}

// Close releases the connection. The client cannot be reconnected
// afterwards. Safe to call multiple times.
func (c *Client) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.logger.Info("closing connection to server", "addr", c.Addr())

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.buf = nil
	c.ready = false
	c.state = StateClosed
	return err
}

func (c *Client) closedError() error {
	return newError(CodeClient, c.name, "This connection has already been closed", nil)
}
