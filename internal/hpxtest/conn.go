package hpxtest

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/Zereker/hpx/frame"
)

// Message is the server-side view of an envelope.
type Message struct {
	Session string          `json:"session"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a structured error object.
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Text returns Data as a string when it is a JSON string.
func (m *Message) Text() string {
	var s string
	_ = json.Unmarshal(m.Data, &s)
	return s
}

// Payload is written as a frame without JSON encoding.
type Payload []byte

// Raw is written to the socket verbatim, without compression or delimiter.
type Raw []byte

// Conn is one accepted client connection.
type Conn struct {
	raw     *net.TCPConn
	buf     []byte
	chunk   []byte
	timeout time.Duration
}

func newConn(raw *net.TCPConn, timeout time.Duration) *Conn {
	return &Conn{raw: raw, chunk: make([]byte, 4096), timeout: timeout}
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// ReadPayload blocks until a complete frame arrives and returns it
// decompressed.
func (c *Conn) ReadPayload() ([]byte, error) {
	if c.timeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.timeout))
	}
	for {
		payload, rest, err := frame.Decode(c.buf)
		if err == nil {
			c.buf = append(c.buf[:0], rest...)
			return payload, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return nil, err
		}
		n, err := c.raw.Read(c.chunk)
		c.buf = append(c.buf, c.chunk[:n]...)
		if n == 0 && err == nil {
			return nil, io.EOF
		}
		if err != nil && n == 0 {
			return nil, err
		}
	}
}

// Read reads one frame and decodes it as a Message.
func (c *Conn) Read() (*Message, error) {
	payload, err := c.ReadPayload()
	if err != nil {
		return nil, err
	}
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Write sends v. Raw and Payload values are written as described on
// those types; anything else is JSON-encoded and framed.
func (c *Conn) Write(v any) error {
	var data []byte
	switch v := v.(type) {
	case Raw:
		data = v
	case Payload:
		encoded, err := frame.Encode(v)
		if err != nil {
			return err
		}
		data = encoded
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return err
		}
		encoded, err := frame.Encode(body)
		if err != nil {
			return err
		}
		data = encoded
	}

	if c.timeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	_, err := c.raw.Write(data)
	return err
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

func jsonRaw(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
