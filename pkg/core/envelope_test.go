package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{"null", nil},
		{"number", 42.5},
		{"string", "hello"},
		{"array", []any{1.0, "two", nil, true}},
		{"nested", map[string]any{
			"user":  map[string]any{"name": "alice", "tags": []any{"a", "b"}},
			"count": 3.0,
		}},
		{"empty object", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().UnixMilli()
			frame, err := EncodeEnvelope("chat:message", tt.payload)
			if err != nil {
				t.Fatalf("EncodeEnvelope() error = %v", err)
			}

			env, err := DecodeEnvelope(frame)
			if err != nil {
				t.Fatalf("DecodeEnvelope() error = %v", err)
			}
			if env.Type != "chat:message" {
				t.Errorf("Type = %q, want chat:message", env.Type)
			}
			if len(env.ID) != 16 {
				t.Errorf("ID = %q, want 16 characters", env.ID)
			}
			if env.Timestamp < before || env.Timestamp > time.Now().UnixMilli() {
				t.Errorf("Timestamp = %d, want emission time in ms", env.Timestamp)
			}

			var got any
			if err := json.Unmarshal(env.Payload, &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if diff := cmp.Diff(tt.payload, got); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvelope_WireFields(t *testing.T) {
	frame, err := EncodeEnvelope("t", map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		t.Fatalf("frame is not a JSON object: %v", err)
	}
	for _, k := range []string{"id", "type", "payload", "timestamp"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("frame %s has no %q field", frame, k)
		}
	}
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"malformed", `{"id":"x","type":`},
		{"not an object", `[1,2,3]`},
		{"missing type", `{"id":"x","payload":1,"timestamp":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("DecodeEnvelope(%q) error = %v, want *DecodeError", tt.data, err)
			}
		})
	}
}

func TestDecodeEnvelope_MissingPayload(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"id":"x","type":"t","timestamp":1}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if string(env.Payload) != "null" {
		t.Errorf("Payload = %s, want null", env.Payload)
	}
}
