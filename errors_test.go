package hpx

import (
	"errors"
	"io"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := newError(CodeConnection, "client", "broken pipe", io.ErrClosedPipe)
	if err.Error() != "client: broken pipe" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("cause not reachable through Unwrap")
	}
}

func TestError_Kinds(t *testing.T) {
	tests := []struct {
		code  Code
		is    []error
		isNot []error
	}{
		{
			code:  CodeClient,
			is:    []error{ErrClient},
			isNot: []error{ErrConnection, ErrAuth, ErrParse},
		},
		{
			code:  CodeConnection,
			is:    []error{ErrClient, ErrConnection},
			isNot: []error{ErrServerDisconnect, ErrAuth},
		},
		{
			code:  CodeServerDisconnect,
			is:    []error{ErrClient, ErrConnection, ErrServerDisconnect},
			isNot: []error{ErrAuth, ErrParse},
		},
		{
			code:  CodeAuth,
			is:    []error{ErrClient, ErrAuth},
			isNot: []error{ErrAuthRequired, ErrConnection},
		},
		{
			code:  CodeAuthRequired,
			is:    []error{ErrClient, ErrAuth, ErrAuthRequired},
			isNot: []error{ErrAuthWrongCredentials, ErrAuthMissingCredentials},
		},
		{
			code:  CodeAuthWrongCredentials,
			is:    []error{ErrClient, ErrAuth, ErrAuthWrongCredentials},
			isNot: []error{ErrAuthRequired},
		},
		{
			code:  CodeAuthMissingCredentials,
			is:    []error{ErrClient, ErrAuth, ErrAuthMissingCredentials},
			isNot: []error{ErrAuthWrongCredentials},
		},
		{
			code:  CodeParse,
			is:    []error{ErrClient, ErrParse},
			isNot: []error{ErrConnection, ErrAuth},
		},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := newError(tt.code, "client", "msg", nil)
			for _, target := range tt.is {
				if !errors.Is(err, target) {
					t.Errorf("errors.Is(%v, %v) = false", tt.code, target.(*Error).Code)
				}
			}
			for _, target := range tt.isNot {
				if errors.Is(err, target) {
					t.Errorf("errors.Is(%v, %v) = true", tt.code, target.(*Error).Code)
				}
			}
			if CodeOf(err) != tt.code {
				t.Errorf("CodeOf = %v, want %v", CodeOf(err), tt.code)
			}
		})
	}
}

func TestError_NotSentinel(t *testing.T) {
	a := newError(CodeClient, "client", "a", nil)
	b := newError(CodeClient, "client", "b", nil)
	if errors.Is(a, b) {
		t.Error("distinct errors compared equal")
	}
	if !errors.Is(a, a) {
		t.Error("error does not match itself")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != 0 {
		t.Error("CodeOf(nil) != 0")
	}
	if CodeOf(io.EOF) != 0 {
		t.Error("CodeOf(io.EOF) != 0")
	}
}

func TestCode_String(t *testing.T) {
	if CodeAuthMissingCredentials.String() != "AuthMissingCredentials" {
		t.Errorf("String() = %s", CodeAuthMissingCredentials.String())
	}
	if Code(1).String() != "Code(1)" {
		t.Errorf("String() = %s", Code(1).String())
	}
}

func TestAuthError(t *testing.T) {
	tests := []struct {
		name     string
		se       *ServerError
		wantCode Code
		wantMsg  string
	}{
		{name: "nil", se: nil},
		{name: "zero code", se: &ServerError{Code: 0, Msg: "fine"}},
		{name: "wrong credentials", se: &ServerError{Code: 411, Msg: "bad"}, wantCode: CodeAuthWrongCredentials, wantMsg: "c: bad"},
		{name: "auth required", se: &ServerError{Code: 407, Msg: "login"}, wantCode: CodeAuthRequired, wantMsg: "c: login"},
		{name: "missing credentials", se: &ServerError{Code: 412, Msg: "none"}, wantCode: CodeAuthMissingCredentials, wantMsg: "c: none"},
		{name: "other", se: &ServerError{Code: 501, Msg: "boom"}, wantCode: CodeAuth, wantMsg: "c: 501: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authError("c", tt.se)
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if CodeOf(err) != tt.wantCode {
				t.Errorf("code = %v, want %v", CodeOf(err), tt.wantCode)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
