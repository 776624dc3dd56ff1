package contracts

import (
	"context"
	"errors"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/store"
)

// ChatRepository is the persistence the chat handlers need
type ChatRepository interface {
	Record(ctx context.Context, chat store.JoinedChat) (store.JoinedChat, error)
	Get(ctx context.Context, chatID string) (store.JoinedChat, error)
	List(ctx context.Context, platform string, limit int) ([]store.JoinedChat, error)
}

// RegisterChatHandlers answers the chat bundles on c from repo. The returned
// function removes the handlers.
func RegisterChatHandlers(c *core.EventContext, repo ChatRepository) func() {
	offs := []core.Unsubscribe{
		core.DefineInvokeHandler(c, RecordChat, func(ctx context.Context, chat store.JoinedChat) (store.JoinedChat, error) {
			stored, err := repo.Record(ctx, chat)
			if err != nil {
				return store.JoinedChat{}, reportError(c, err)
			}
			return stored, nil
		}),

		core.DefineInvokeHandler(c, GetChat, func(ctx context.Context, req GetChatRequest) (store.JoinedChat, error) {
			chat, err := repo.Get(ctx, req.ChatID)
			if errors.Is(err, store.ErrNotFound) {
				return store.JoinedChat{}, core.NewRemoteError(store.ErrNotFound.Code, "chat "+req.ChatID+" not found")
			}
			if err != nil {
				return store.JoinedChat{}, reportError(c, err)
			}
			return chat, nil
		}),

		core.DefineStreamInvokeHandler(c, ListChats, core.ToStreamHandler(func(e *core.StreamEmitter[ListChatsRequest, store.JoinedChat]) error {
			chats, err := repo.List(e.Context(), e.Payload.Platform, e.Payload.Limit)
			if err != nil {
				return reportError(c, err)
			}
			for i, chat := range chats {
				if err := e.Context().Err(); err != nil {
					return err
				}
				e.Emit(chat)
				core.Emit(c, CoreProgress, ProgressEvent{Progress: float64(i+1) / float64(len(chats))})
			}
			return nil
		})),
	}

	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// reportError publishes err on core:error and returns it
func reportError(c *core.EventContext, err error) error {
	core.Emit(c, CoreError, ErrorEvent{Error: err.Error()})
	return err
}
