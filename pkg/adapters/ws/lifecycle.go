package ws

import (
	"github.com/fluxorio/eventa/pkg/core"
)

const lifecyclePrefix = "eventa:adapters:websocket:"

// Lifecycle tags emitted by both adapters. The client fills URL, the server
// fills the peer ID.
var (
	ConnectedEvent    = core.DefineTag[ConnectedPayload](lifecyclePrefix + "connected" + core.SuffixSend)
	DisconnectedEvent = core.DefineTag[ConnectedPayload](lifecyclePrefix + "disconnected" + core.SuffixSend)
	ErrorEvent        = core.DefineTag[ErrorPayload](lifecyclePrefix + "error" + core.SuffixSend)
)

// ConnectedPayload identifies the connection that opened or closed
type ConnectedPayload struct {
	URL string `json:"url,omitempty"`
	ID  string `json:"id,omitempty"`
}

// ErrorPayload carries a transport error. Err is only set for errors raised
// in this process.
type ErrorPayload struct {
	URL   string `json:"url,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

func errorPayload(url, id string, err error) ErrorPayload {
	return ErrorPayload{URL: url, ID: id, Error: err.Error(), Err: err}
}
