package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		want    string
		wantErr bool
	}{
		{"map", map[string]string{"key": "value"}, `{"key":"value"}`, false},
		{"string", "test", `"test"`, false},
		{"nil", nil, `null`, false},
		{"struct", struct{ Name string }{"test"}, `{"Name":"test"}`, false},
		{"raw passes through", json.RawMessage(`{"a": 1}`), `{"a": 1}`, false},
		{"unsupported", make(chan int), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePayload(tt.v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var coded *Error
				if !errors.As(err, &coded) || coded.Code != CodeEncodeFailed {
					t.Errorf("EncodePayload() error = %v, want code %s", err, CodeEncodeFailed)
				}
				return
			}
			if string(got) != tt.want {
				t.Errorf("EncodePayload() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	type pointAlike struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	}

	tests := []struct {
		name    string
		payload any
		want    point
		wantErr bool
	}{
		{"native", point{X: 1, Y: 2}, point{X: 1, Y: 2}, false},
		{"raw message", json.RawMessage(`{"x":3,"y":4}`), point{X: 3, Y: 4}, false},
		{"bytes", []byte(`{"x":5}`), point{X: 5}, false},
		{"nil", nil, point{}, false},
		{"json null", json.RawMessage(`null`), point{}, false},
		{"compatible struct", pointAlike{X: 7, Y: 8, Z: 9}, point{X: 7, Y: 8}, false},
		{"map", map[string]int{"x": 1}, point{X: 1}, false},
		{"wrong shape", json.RawMessage(`[1,2]`), point{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload[point](tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var decodeErr *DecodeError
				if !errors.As(err, &decodeErr) {
					t.Errorf("DecodePayload() error = %T, want *DecodeError", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodePayload() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodePayload_Any(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	got, err := DecodePayload[any](raw)
	if err != nil {
		t.Fatalf("DecodePayload[any]() error = %v", err)
	}
	if diff := cmp.Diff(any(raw), got); diff != "" {
		t.Errorf("DecodePayload[any]() should pass payloads through (-want +got):\n%s", diff)
	}
}
