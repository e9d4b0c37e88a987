package hpx

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// authenticatedMarker is the data value the server sends once credentials
// have been accepted.
const authenticatedMarker = "Authenticated"

// requestAuthMarker is the data value that opens a handshake.
const requestAuthMarker = "requestauth"

// Envelope is the unit exchanged in both directions.
type Envelope struct {
	Session string          `json:"session"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	Error   *ServerError    `json:"error,omitempty"`
}

// ServerError is a structured error object reported by the server.
type ServerError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ServerInfo is the metadata the server advertises when a client connects.
type ServerInfo struct {
	Version      json.RawMessage `json:"version"`
	GuestAllowed bool            `json:"guest_allowed"`
}

// Build produces an outbound envelope around data.
func Build(name string, data any, session string) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope data")
	}
	return &Envelope{Session: session, Name: name, Data: raw}, nil
}

// Parse decodes raw as an envelope. The input must be UTF-8 text holding
// a JSON object; anything else yields a ParseError that carries raw.
func Parse(client string, raw []byte) (*Envelope, error) {
	if !utf8.Valid(raw) {
		return nil, parseError(client, raw, errors.New("invalid UTF-8"))
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, parseError(client, raw, errors.New("payload is not a JSON object"))
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, parseError(client, raw, err)
	}
	return &env, nil
}

func parseError(client string, raw []byte, cause error) *Error {
	e := newError(CodeParse, client, "Failed parsing JSON data from server: "+cause.Error(), cause)
	e.Raw = raw
	return e
}

// Decode unmarshals the envelope data into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.New("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// Text returns the data as a string when it is a JSON string.
func (e *Envelope) Text() (string, bool) {
	var s string
	if len(e.Data) == 0 || e.Data[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", false
	}
	return s, true
}

// Authenticated reports whether the envelope carries the acceptance marker.
func (e *Envelope) Authenticated() bool {
	s, ok := e.Text()
	return ok && s == authenticatedMarker
}

// ServerError returns the structured error carried by the envelope. The
// top-level error key takes precedence over a {code,msg} object in data.
func (e *Envelope) ServerError() *ServerError {
	if e.Error != nil {
		return e.Error
	}
	if len(e.Data) == 0 || e.Data[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return nil
	}
	if _, ok := fields["code"]; !ok {
		return nil
	}
	var se ServerError
	if err := json.Unmarshal(e.Data, &se); err != nil || se.Code == 0 {
		return nil
	}
	return &se
}

// ServerInfo extracts server metadata when data holds a version key.
func (e *Envelope) ServerInfo() (ServerInfo, bool) {
	var info ServerInfo
	if len(e.Data) == 0 || e.Data[0] != '{' {
		return info, false
	}
	if err := json.Unmarshal(e.Data, &info); err != nil || len(info.Version) == 0 {
		return ServerInfo{}, false
	}
	return info, true
}
