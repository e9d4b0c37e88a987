package hpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Zereker/hpx/internal/hpxtest"
)

const (
	testUser     = "user"
	testPassword = "pass"
	testSession  = "abc"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestClient returns a client pointed at server that is closed when the
// test ends.
func newTestClient(t *testing.T, server *hpxtest.Server, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		HostOption(server.Host()),
		PortOption(server.Port()),
		TimeoutOption(2 * time.Second),
		LoggerOption(discardLogger),
	}
	c, err := New("test", append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func connect(t *testing.T, c *Client) {
	t.Helper()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

// recorder collects the requests seen by a test server.
type recorder struct {
	mu   sync.Mutex
	reqs []*hpxtest.Message
}

func (r *recorder) add(req *hpxtest.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recorder) all() []*hpxtest.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*hpxtest.Message(nil), r.reqs...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func decodeCredentials(req *hpxtest.Message) (map[string]string, bool) {
	var creds map[string]string
	if len(req.Data) == 0 || req.Data[0] != '{' {
		return nil, false
	}
	if err := json.Unmarshal(req.Data, &creds); err != nil {
		return nil, false
	}
	return creds, true
}

// authHandler answers like a server that requires authentication:
// requestauth gets server info, correct credentials get the session,
// wrong ones a 411 and requests with a valid session are echoed.
func authHandler(rec *recorder) hpxtest.Handler {
	return hpxtest.Responder(hpxtest.Greeting("1.0", false), func(req *hpxtest.Message) any {
		rec.add(req)

		if req.Text() == "requestauth" {
			return hpxtest.Reply(req, map[string]any{"version": "1.0", "guest_allowed": false})
		}
		if creds, ok := decodeCredentials(req); ok && req.Session == "" {
			if creds["user"] == testUser && creds["password"] == testPassword {
				return &hpxtest.Message{Session: testSession, Name: req.Name, Data: json.RawMessage(`"Authenticated"`)}
			}
			return hpxtest.ErrorReply(req, 411, "wrong credentials")
		}
		if req.Session != testSession {
			return hpxtest.ErrorReply(req, 407, "authentication required")
		}
		return hpxtest.Reply(req, req.Data)
	})
}

// funcDialer adapts a function to Dialer and counts calls.
type funcDialer struct {
	mu    sync.Mutex
	calls int
	dial  func(ctx context.Context, network, address string) (net.Conn, error)
}

func (d *funcDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.dial(ctx, network, address)
}

func (d *funcDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
