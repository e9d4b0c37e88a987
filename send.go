package hpx

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Send wraps data in an envelope carrying the client name and session and
// exchanges it with the server.
func (c *Client) Send(ctx context.Context, data any, opt ...SendOption) (*Envelope, error) {
	env, err := Build(c.name, data, c.session)
	if err != nil {
		return nil, newError(CodeClient, c.name, err.Error(), err)
	}
	return c.SendRaw(ctx, env, opt...)
}

// SendRaw serializes msg as JSON, sends it and parses the response
// envelope. A malformed response yields a ParseError.
func (c *Client) SendRaw(ctx context.Context, msg any, opt ...SendOption) (*Envelope, error) {
	if err := c.checkAuth(applySendOptions(opt)); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, newError(CodeClient, c.name, "marshal request: "+err.Error(), err)
	}

	resp, err := c.SendBytes(ctx, raw, opt...)
	if err != nil {
		return nil, err
	}
	return Parse(c.name, resp)
}

// SendBytes writes raw as one frame and blocks until the response frame
// arrives, returning its decompressed payload. Unless NoAuthCheckOption
// is given, a connected client that has not been accepted gets an
// AuthRequiredError and nothing is written.
func (c *Client) SendBytes(ctx context.Context, raw []byte, opt ...SendOption) (resp []byte, err error) {
	if err = c.checkAuth(applySendOptions(opt)); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, newError(CodeClient, c.name, err.Error(), err)
	}

	ctx, span := c.startSpan(ctx, "hpx.SendBytes", attribute.Int("hpx.request.size", len(raw)))
	start := time.Now()
	var sent, received int
	defer func() {
		c.metrics.observeRequest(start, sent, received, err)
		span.SetAttributes(attribute.Int("hpx.response.size", len(resp)))
		endSpan(span, err)
	}()

	if sent, err = c.write(ctx, raw); err != nil {
		return nil, err
	}
	resp, received, err = c.receive(ctx)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) checkAuth(so sendOptions) error {
	if so.skipAuthCheck {
		return nil
	}
	if c.state == StateConnected {
		return newError(CodeAuthRequired, c.name, "Client '"+c.name+"' is connected but not authenticated", nil)
	}
	return nil
}
