package core

import (
	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// Suffixes appended to a bundle's base name
const (
	SuffixSend             = "-send"
	SuffixSendError        = "-send-error"
	SuffixReceive          = "-receive"
	SuffixReceiveError     = "-receive-error"
	SuffixReceiveStreamEnd = "-receive-stream-end"
)

// Request is the payload of a bundle's send tag
type Request[T any] struct {
	InvokeID string `json:"invokeId"`
	Content  T      `json:"content"`
}

// Response is the payload of a bundle's receive tag
type Response[T any] struct {
	InvokeID string `json:"invokeId"`
	Content  T      `json:"content"`
}

// ErrorResponse is the payload of a bundle's error tags
type ErrorResponse struct {
	InvokeID string       `json:"invokeId"`
	Content  ErrorContent `json:"content"`
}

// ErrorContent wraps the error reported by a handler
type ErrorContent struct {
	Error *RemoteError `json:"error"`
}

func (c ErrorContent) err() error {
	if c.Error == nil {
		return &RemoteError{Message: "remote error without details", Code: CodeRemote}
	}
	return c.Error
}

// StreamEnd is the payload of a bundle's stream-end tag
type StreamEnd struct {
	InvokeID string `json:"invokeId"`
}

// Bundle holds the five tags that implement request/response and streaming
// calls over plain events. All five derive from one base name, so peers that
// share only the base name agree on every tag.
type Bundle[Req, Res any] struct {
	base string

	SendEvent             Tag[Request[Req]]
	SendEventError        Tag[ErrorResponse]
	ReceiveEvent          Tag[Response[Res]]
	ReceiveEventError     Tag[ErrorResponse]
	ReceiveEventStreamEnd Tag[StreamEnd]
}

// DefineInvokeBundle derives a bundle from name, or from a generated base
// when name is omitted.
func DefineInvokeBundle[Req, Res any](name ...string) Bundle[Req, Res] {
	var base string
	if len(name) > 0 {
		base = name[0]
	} else {
		base = NewID()
	}
	failfast.NotEmpty(base, "bundle name")
	failfast.Err(ValidateTag(base + SuffixReceiveStreamEnd))

	return Bundle[Req, Res]{
		base:                  base,
		SendEvent:             DefineTag[Request[Req]](base + SuffixSend),
		SendEventError:        DefineTag[ErrorResponse](base + SuffixSendError),
		ReceiveEvent:          DefineTag[Response[Res]](base + SuffixReceive),
		ReceiveEventError:     DefineTag[ErrorResponse](base + SuffixReceiveError),
		ReceiveEventStreamEnd: DefineTag[StreamEnd](base + SuffixReceiveStreamEnd),
	}
}

// Base returns the name the bundle was derived from
func (b Bundle[Req, Res]) Base() string {
	return b.base
}

// Tags returns the five derived tag names in declaration order
func (b Bundle[Req, Res]) Tags() []string {
	return []string{
		b.SendEvent.Name(),
		b.SendEventError.Name(),
		b.ReceiveEvent.Name(),
		b.ReceiveEventError.Name(),
		b.ReceiveEventStreamEnd.Name(),
	}
}
