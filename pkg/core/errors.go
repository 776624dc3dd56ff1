package core

import (
	"errors"
)

// Error codes carried by Error and RemoteError
const (
	CodeInvalidTag     = "INVALID_TAG"
	CodeInvalidTimeout = "INVALID_TIMEOUT"
	CodeEncodeFailed   = "ENCODE_FAILED"
	CodeTimeout        = "TIMEOUT"
	CodeContextClosed  = "CONTEXT_CLOSED"
	CodeCancelled      = "STREAM_CANCELLED"
	CodeDecodeFailed   = "DECODE_FAILED"
	CodeBadRequest     = "BAD_REQUEST"
	CodePanic          = "PANIC"
	CodeRejected       = "REJECTED"
	CodeRemote         = "REMOTE_ERROR"
)

// Errors
var (
	ErrTimeout         = &Error{Code: CodeTimeout, Message: "invoke timeout"}
	ErrContextClosed   = &Error{Code: CodeContextClosed, Message: "event context is closed"}
	ErrStreamCancelled = &Error{Code: CodeCancelled, Message: "stream cancelled"}
)

// Error represents an eventa error
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RemoteError is the error a handler reported for one invoke call. It is the
// "content.error" object of a receive-error frame.
//
// When the handler ran in the same process the original error stays
// reachable through errors.Is / errors.As.
type RemoteError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`

	cause error
}

// NewRemoteError creates a RemoteError handlers can return to pick the code
// seen by the caller.
func NewRemoteError(code, message string) *RemoteError {
	return &RemoteError{Code: code, Message: message}
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

// toRemoteError converts a handler error to its wire form, keeping the code
// and the wrapped cause of a coded error.
func toRemoteError(err error) *RemoteError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return &RemoteError{Message: remote.Message, Code: remote.Code, cause: err}
	}
	var coded *Error
	if errors.As(err, &coded) {
		return &RemoteError{Message: coded.Error(), Code: coded.Code, cause: err}
	}
	return &RemoteError{Message: err.Error(), Code: CodeRemote, cause: err}
}

// DecodeError reports a payload or envelope that could not be decoded
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode failed: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
