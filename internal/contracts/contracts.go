// Package contracts declares the tags and bundles shared by eventa-server
// and eventa-client, and the handlers the server registers for them.
package contracts

import (
	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/store"
)

// Application-wide notifications
var (
	CoreError    = core.DefineTag[ErrorEvent]("core:error")
	CoreProgress = core.DefineTag[ProgressEvent]("core:progress")
)

// Chat bundles. ListChats is answered as a stream, one chat per item.
var (
	RecordChat = core.DefineInvokeBundle[store.JoinedChat, store.JoinedChat]("eventa:chats:record")
	GetChat    = core.DefineInvokeBundle[GetChatRequest, store.JoinedChat]("eventa:chats:get")
	ListChats  = core.DefineInvokeBundle[ListChatsRequest, store.JoinedChat]("eventa:chats:list")
)

type ErrorEvent struct {
	Error string `json:"error"`
}

// ProgressEvent reports completion between 0 and 1
type ProgressEvent struct {
	Progress float64 `json:"progress"`
}

type GetChatRequest struct {
	ChatID string `json:"chatId"`
}

type ListChatsRequest struct {
	Platform string `json:"platform,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}
