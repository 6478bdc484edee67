package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("session not authenticated")
	ErrMissingField     = errors.New("expected field missing from response")
)

// TransportError is an HTTP-level failure: the request could not be sent or
// the server answered with a non-2xx status. It is never retried.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // zero when the request never got a response
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the backend broke its response contract: the body is not
// JSON, or a field expected after success is missing.
type ProtocolError struct {
	URL   string
	Field string
	Err   error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ApplicationFailure is a nonzero rtn inside a well-formed envelope.
type ApplicationFailure struct {
	Path string
	Code int
}

func (e *ApplicationFailure) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s failed with code %d", e.Path, e.Code)
	}
	return fmt.Sprintf("request failed with code %d", e.Code)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is or wraps a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
