package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fluxorio/eventa/internal/contracts"
	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/store"
)

var errUsage = errors.New("invalid arguments")

// runCommand executes one CLI command against bus and writes JSON lines to out
func runCommand(ctx context.Context, bus *core.EventContext, timeout time.Duration, name string, args []string, out io.Writer) error {
	enc := json.NewEncoder(out)
	var opts []core.InvokeOption
	if timeout > 0 {
		opts = append(opts, core.WithInvokeTimeout(timeout))
	}

	switch name {
	case "record":
		fs := flag.NewFlagSet("record", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var chat store.JoinedChat
		fs.StringVar(&chat.ChatID, "id", "", "chat id")
		fs.StringVar(&chat.ChatName, "name", "", "chat name")
		fs.StringVar(&chat.ChatType, "type", "", "chat type")
		fs.StringVar(&chat.Platform, "platform", "", "platform")
		if err := fs.Parse(args); err != nil || chat.ChatID == "" {
			return fmt.Errorf("%w: record needs -id", errUsage)
		}
		stored, err := core.DefineInvoke(bus, contracts.RecordChat, opts...)(ctx, chat)
		if err != nil {
			return err
		}
		return enc.Encode(stored)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("%w: get needs exactly one chat id", errUsage)
		}
		chat, err := core.DefineInvoke(bus, contracts.GetChat, opts...)(ctx, contracts.GetChatRequest{ChatID: args[0]})
		if err != nil {
			return err
		}
		return enc.Encode(chat)

	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var req contracts.ListChatsRequest
		fs.StringVar(&req.Platform, "platform", "", "only chats of this platform")
		fs.IntVar(&req.Limit, "limit", 0, "maximum number of chats")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		s, err := core.DefineStreamInvoke(bus, contracts.ListChats)(ctx, req)
		if err != nil {
			return err
		}
		for chat, err := range s.Seq(ctx) {
			if err != nil {
				return err
			}
			if err := enc.Encode(chat); err != nil {
				return err
			}
		}
		return nil

	case "watch":
		var mu sync.Mutex
		write := func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(v)
		}
		offProgress := core.On(bus, contracts.CoreProgress, func(p contracts.ProgressEvent) error {
			return write(map[string]any{"event": contracts.CoreProgress.Name(), "progress": p.Progress})
		})
		defer offProgress()
		offError := core.On(bus, contracts.CoreError, func(e contracts.ErrorEvent) error {
			return write(map[string]any{"event": contracts.CoreError.Name(), "error": e.Error})
		})
		defer offError()
		<-ctx.Done()
		return ctx.Err()

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}
