package core

import (
	"bytes"
	"encoding/json"
)

// EncodePayload renders an emitted payload as JSON. Values already holding
// JSON (json.RawMessage) pass through untouched; nil encodes as null.
func EncodePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok && len(raw) > 0 {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: CodeEncodeFailed, Message: "cannot encode payload", Err: err}
	}
	return data, nil
}

// DecodePayload converts an emitted payload to P.
//
// In-process emissions carry P itself and are returned as-is. Payloads that
// arrived over a transport are raw JSON and get decoded. Anything else is
// re-encoded and decoded so structurally compatible values still convert.
func DecodePayload[P any](payload any) (P, error) {
	var zero P
	switch v := payload.(type) {
	case nil:
		return zero, nil
	case P:
		return v, nil
	case json.RawMessage:
		return decodeRaw[P](v)
	case []byte:
		return decodeRaw[P](v)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return zero, &DecodeError{Err: err}
	}
	return decodeRaw[P](data)
}

func decodeRaw[P any](data []byte) (P, error) {
	var out P
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &DecodeError{Err: err}
	}
	return out, nil
}
