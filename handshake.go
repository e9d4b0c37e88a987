package hpx

import (
	"context"
)

// handshakeStep is the position of the handshake state machine.
type handshakeStep int

const (
	// stepSubmit sends the credentials, or an empty object when none are known.
	stepSubmit handshakeStep = iota
	// stepOutcome inspects the server's answer to the submitted credentials.
	stepOutcome
)

// RequestHandshake asks the server to start authentication and then
// completes the handshake. When no credentials are supplied, the ones
// cached by an earlier handshake are used.
func (c *Client) RequestHandshake(ctx context.Context, opt ...HandshakeOption) (ok bool, err error) {
	ho := applyHandshakeOptions(opt)
	if !ho.hasCredentials {
		ho.user, ho.password = c.lastUser, c.lastPassword
	}

	ctx, span := c.startSpan(ctx, "hpx.RequestHandshake")
	defer func() { endSpan(span, err) }()

	req, err := Build(c.name, requestAuthMarker, "")
	if err != nil {
		return false, newError(CodeClient, c.name, err.Error(), err)
	}
	prompt, err := c.SendRaw(ctx, req, NoAuthCheckOption())
	if err != nil {
		return false, err
	}
	c.recordServerInfo(prompt)

	return c.handshake(ctx, ho, prompt)
}

// Handshake submits credentials to the server and reports whether it
// accepted them. Server-reported auth failures are returned as errors of
// the matching kind unless IgnoreAuthErrorsOption is given.
func (c *Client) Handshake(ctx context.Context, opt ...HandshakeOption) (ok bool, err error) {
	ctx, span := c.startSpan(ctx, "hpx.Handshake")
	defer func() { endSpan(span, err) }()

	return c.handshake(ctx, applyHandshakeOptions(opt), nil)
}

// handshake runs the submit/outcome steps. prior is the server message
// that preceded the credentials, if any.
func (c *Client) handshake(ctx context.Context, ho handshakeOptions, prior *Envelope) (bool, error) {
	if !c.Alive() {
		return false, nil
	}
	if ho.user != "" {
		c.lastUser, c.lastPassword = ho.user, ho.password
	}

	resp := prior
	step := stepSubmit
	for {
		if resp != nil && !ho.ignoreErrors {
			if err := authError(c.name, resp.ServerError()); err != nil {
				c.logger.Info("handshake rejected", "error", err)
				return false, err
			}
		}

		switch step {
		case stepSubmit:
			creds := map[string]string{}
			if ho.user != "" {
				creds["user"] = ho.user
				creds["password"] = ho.password
			}
			env, err := Build(c.name, creds, "")
			if err != nil {
				return false, newError(CodeClient, c.name, err.Error(), err)
			}
			if resp, err = c.SendRaw(ctx, env, NoAuthCheckOption()); err != nil {
				return false, err
			}
			step = stepOutcome

		case stepOutcome:
			if !resp.Authenticated() {
				c.logger.Debug("handshake not accepted")
				return false, nil
			}
			c.session = resp.Session
			c.state = StateAuthenticated
			c.logger.Info("handshake accepted")
			return true, nil
		}
	}
}
