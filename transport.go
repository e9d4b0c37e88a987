package hpx

import (
	"context"
	"io"
	"time"

	"github.com/Zereker/hpx/frame"
	"github.com/pkg/errors"
)

// errMessageTooLarge is reported when a frame, not counting its
// delimiter, is longer than maxReadLength.
var errMessageTooLarge = errors.New("message too large")

// deadline returns the socket deadline for an operation starting now, or
// the zero time when neither the timeout nor ctx bounds it.
func (c *Client) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.opts.timeout > 0 {
		d = time.Now().Add(c.opts.timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// write frames payload and sends it. It returns the number of bytes
// written to the socket.
func (c *Client) write(ctx context.Context, payload []byte) (int, error) {
	if !c.Alive() || c.conn == nil {
		return 0, newError(CodeClient, c.name, "Client '"+c.name+"' is not connected to server", nil)
	}

	data, err := frame.Encode(payload)
	if err != nil {
		return 0, newError(CodeClient, c.name, err.Error(), err)
	}

	c.logger.Debug("sending bytes to server", "addr", c.Addr(), "bytes", len(data))

	_ = c.conn.SetWriteDeadline(c.deadline(ctx))
	n, err := c.conn.Write(data)
	if err != nil {
		c.disconnect(err)
		return n, newError(CodeConnection, c.name, err.Error(), err)
	}
	return n, nil
}

// receive blocks until one complete frame is buffered and returns its
// decompressed payload along with the number of bytes read from the
// socket. Bytes past the delimiter stay buffered for the next call.
func (c *Client) receive(ctx context.Context) ([]byte, int, error) {
	if c.conn == nil {
		return nil, 0, newError(CodeClient, c.name, "Client '"+c.name+"' is not connected to server", nil)
	}

	_ = c.conn.SetReadDeadline(c.deadline(ctx))

	read := 0
	for {
		if msg, rest, ok := frame.Split(c.buf); ok {
			if len(msg) > c.opts.maxReadLength {
				return nil, read, c.tooLarge()
			}
			payload, err := frame.Decompress(msg)
			if err != nil {
				c.disconnect(err)
				return nil, read, newError(CodeConnection, c.name, err.Error(), err)
			}
			c.buf = append(c.buf[:0], rest...)
			c.logger.Debug("received bytes from server", "addr", c.Addr(), "bytes", len(payload))
			return payload, read, nil
		}
		// the tail may hold a partial delimiter
		if len(c.buf)-len(frame.Delimiter)+1 > c.opts.maxReadLength {
			return nil, read, c.tooLarge()
		}

		n, err := c.conn.Read(c.chunk)
		read += n
		c.buf = append(c.buf, c.chunk[:n]...)
		if n > 0 {
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			c.disconnect(io.EOF)
			return nil, read, newError(CodeServerDisconnect, c.name, "Server disconnected", io.EOF)
		}
		c.disconnect(err)
		return nil, read, newError(CodeConnection, c.name, err.Error(), err)
	}
}

func (c *Client) tooLarge() error {
	c.disconnect(errMessageTooLarge)
	return newError(CodeConnection, c.name, errMessageTooLarge.Error(), errMessageTooLarge)
}
