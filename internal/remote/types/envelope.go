package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the generic response wrapper: a numeric "rtn" code plus
// operation-specific payload fields. Payload fields may be absent when Rtn != 0.
type Envelope struct {
	Rtn    int
	Fields map[string]json.RawMessage
	Path   string // relative API path the envelope answered, set by the dispatcher
}

// DecodeEnvelope parses a response body. The rtn field is read before anything else;
// a body that is not a JSON object or lacks a numeric rtn is a ProtocolError.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("response is not a JSON object: %w", err)}
	}
	if fields == nil {
		return nil, &ProtocolError{Err: errors.New("response is null")}
	}

	raw, ok := fields["rtn"]
	if !ok {
		return nil, &ProtocolError{Field: "rtn", Err: ErrMissingField}
	}

	var rtn int
	if err := json.Unmarshal(raw, &rtn); err != nil {
		return nil, &ProtocolError{Field: "rtn", Err: fmt.Errorf("rtn is not an integer: %w", err)}
	}

	return &Envelope{Rtn: rtn, Fields: fields}, nil
}

// OK reports whether the server signaled success.
func (e *Envelope) OK() bool {
	return e.Rtn == 0
}

// Has reports whether the payload carries the named field with a non-null value.
func (e *Envelope) Has(name string) bool {
	raw, ok := e.Fields[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Field decodes the named payload field into dst. A missing or null field, or one
// that does not match dst's shape, is a ProtocolError.
func (e *Envelope) Field(name string, dst any) error {
	if !e.Has(name) {
		return &ProtocolError{Field: name, Err: ErrMissingField}
	}
	if err := json.Unmarshal(e.Fields[name], dst); err != nil {
		return &ProtocolError{Field: name, Err: err}
	}
	return nil
}

// Err returns an ApplicationFailure for a nonzero rtn, nil otherwise.
func (e *Envelope) Err() error {
	if e.OK() {
		return nil
	}
	return &ApplicationFailure{Path: e.Path, Code: e.Rtn}
}

// MarshalJSON writes the envelope back out with every field it was decoded from.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e.Fields == nil {
		return json.Marshal(map[string]int{"rtn": e.Rtn})
	}
	return json.Marshal(e.Fields)
}
