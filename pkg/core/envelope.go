package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Envelope is the wire form of one emission
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope encodes payload and stamps it with a fresh id and the current
// time in milliseconds
func NewEnvelope(tag string, payload any) (Envelope, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        NewID(),
		Type:      tag,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// EncodeEnvelope returns the JSON frame for one emission
func EncodeEnvelope(tag string, payload any) ([]byte, error) {
	env, err := NewEnvelope(tag, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a frame. Empty input, malformed JSON and frames
// without a type fail with *DecodeError. A missing payload decodes as null.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(data)) == 0 {
		return env, &DecodeError{Err: errors.New("empty frame")}
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &DecodeError{Err: err}
	}
	if env.Type == "" {
		return Envelope{}, &DecodeError{Err: errors.New("frame has no type")}
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("null")
	}
	return env, nil
}
