package hpx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies an error kind. The values match the codes the server
// reports in structured error objects.
type Code int

// Error codes.
const (
	CodeClient                 Code = 500
	CodeConnection             Code = 501
	CodeServerDisconnect       Code = 502
	CodeAuth                   Code = 406
	CodeAuthRequired           Code = 407
	CodeAuthWrongCredentials   Code = 411
	CodeAuthMissingCredentials Code = 412
	CodeParse                  Code = 900
)

var codeNames = map[Code]string{
	CodeClient:                 "ClientError",
	CodeConnection:             "ConnectionError",
	CodeServerDisconnect:       "ServerDisconnectError",
	CodeAuth:                   "AuthError",
	CodeAuthRequired:           "AuthRequiredError",
	CodeAuthWrongCredentials:   "AuthWrongCredentialsError",
	CodeAuthMissingCredentials: "AuthMissingCredentials",
	CodeParse:                  "ParseError",
}

// codeParents encodes the kind hierarchy. ClientError is the root.
var codeParents = map[Code]Code{
	CodeConnection:             CodeClient,
	CodeServerDisconnect:       CodeConnection,
	CodeAuth:                   CodeClient,
	CodeAuthRequired:           CodeAuth,
	CodeAuthWrongCredentials:   CodeAuth,
	CodeAuthMissingCredentials: CodeAuth,
	CodeParse:                  CodeClient,
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// kindOf reports whether c is kind or one of its descendants.
func (c Code) kindOf(kind Code) bool {
	for {
		if c == kind {
			return true
		}
		parent, ok := codeParents[c]
		if !ok {
			return false
		}
		c = parent
	}
}

// Error is the only error type returned by Client operations.
type Error struct {
	Code   Code
	Client string
	Msg    string
	// Raw holds the offending buffer for ParseError.
	Raw []byte

	cause error
}

// Sentinel kinds for use with errors.Is. A sentinel matches any error of
// the same kind or of a more specific kind, so errors.Is(err, ErrConnection)
// is true for a ServerDisconnectError.
var (
	ErrClient                 = &Error{Code: CodeClient}
	ErrConnection             = &Error{Code: CodeConnection}
	ErrServerDisconnect       = &Error{Code: CodeServerDisconnect}
	ErrAuth                   = &Error{Code: CodeAuth}
	ErrAuthRequired           = &Error{Code: CodeAuthRequired}
	ErrAuthWrongCredentials   = &Error{Code: CodeAuthWrongCredentials}
	ErrAuthMissingCredentials = &Error{Code: CodeAuthMissingCredentials}
	ErrParse                  = &Error{Code: CodeParse}
)

func newError(code Code, client, msg string, cause error) *Error {
	return &Error{Code: code, Client: client, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	return e.Client + ": " + e.Msg
}

// Unwrap returns the underlying transport, decode or context error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches sentinel kinds. Two non-sentinel errors are only equal when
// they are the same value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Client != "" || t.Msg != "" {
		return e == t
	}
	return e.Code.kindOf(t.Code)
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// serverAuthKinds maps server-reported auth codes to their error kind.
// Unlisted non-zero codes become a generic AuthError.
var serverAuthKinds = map[Code]Code{
	CodeAuthWrongCredentials:   CodeAuthWrongCredentials,
	CodeAuthRequired:           CodeAuthRequired,
	CodeAuthMissingCredentials: CodeAuthMissingCredentials,
}

// authError translates a structured server error into the taxonomy.
// It returns nil when se is nil or carries code 0.
func authError(client string, se *ServerError) error {
	if se == nil || se.Code == 0 {
		return nil
	}
	if kind, ok := serverAuthKinds[Code(se.Code)]; ok {
		return newError(kind, client, se.Msg, nil)
	}
	return newError(CodeAuth, client, fmt.Sprintf("%d: %s", se.Code, se.Msg), nil)
}
