package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// InvokeFunc performs one request/response call
type InvokeFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// HandlerFunc serves one request/response call
type HandlerFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// InvokeOption configures DefineInvoke
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	timeout time.Duration
}

// WithInvokeTimeout bounds every call; an expired call returns ErrTimeout.
// Without it a call waits until a response arrives or ctx ends.
func WithInvokeTimeout(timeout time.Duration) InvokeOption {
	failfast.Err(ValidateTimeout(timeout))
	return func(o *invokeOptions) {
		o.timeout = timeout
	}
}

// DefineInvoke returns a function that sends a request on b.SendEvent and
// waits for the response carrying the same invokeId.
//
// Each call listens only for its own invokeId and removes its listeners when
// it returns, so concurrent calls never see each other's responses. Frames
// for unknown invokeIds are ignored.
func DefineInvoke[Req, Res any](c *EventContext, b Bundle[Req, Res], opts ...InvokeOption) InvokeFunc[Req, Res] {
	failfast.NotNil(c, "event context")

	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, req Req) (Res, error) {
		var zero Res
		if c.IsClosed() {
			return zero, ErrContextClosed
		}

		invokeID := NewID()
		start := time.Now()
		ctx, span := tracer().Start(ctx, "eventa.invoke", invokeAttributes(b.Base(), invokeID))

		waitCtx := ctx
		if o.timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}

		result := newFuture[Res]()
		offReceive := c.OnRaw(b.ReceiveEvent.Name(), func(payload any) error {
			id, res, err := decodeFrame[Res](payload)
			if id != invokeID {
				return nil
			}
			if err != nil {
				result.reject(err)
				return err
			}
			result.resolve(res)
			return nil
		})
		defer offReceive()
		offError := c.OnRaw(b.ReceiveEventError.Name(), func(payload any) error {
			id, content, err := decodeFrame[ErrorContent](payload)
			if id != invokeID {
				return nil
			}
			if err != nil {
				result.reject(err)
				return err
			}
			result.reject(content.err())
			return nil
		})
		defer offError()
		stopClose := context.AfterFunc(c.Context(), func() {
			result.reject(ErrContextClosed)
		})
		defer stopClose()

		Emit(c, b.SendEvent, Request[Req]{InvokeID: invokeID, Content: req})

		res, err := result.Await(waitCtx)
		outcome := OutcomeOK
		switch {
		case err == nil:
		case result.settled():
			outcome = OutcomeError
		case ctx.Err() == nil:
			err = ErrTimeout
			outcome = OutcomeTimeout
		default:
			outcome = OutcomeCancelled
		}

		endSpan(span, err)
		c.observer.InvokeCompleted(b.Base(), KindInvoke, outcome, time.Since(start))
		return res, err
	}
}

// DefineInvokeHandler serves calls of bundle b with fn. For every request
// carrying an invokeId exactly one of b.ReceiveEvent or b.ReceiveEventError
// is emitted. Each call runs fn on its own goroutine, so a handler that
// waits on another call never holds up the rest; beyond the executor bound
// the caller gets a REJECTED error. A panic in fn is reported to the caller
// as a PANIC error.
func DefineInvokeHandler[Req, Res any](c *EventContext, b Bundle[Req, Res], fn HandlerFunc[Req, Res]) Unsubscribe {
	failfast.NotNil(c, "event context")
	failfast.NotNil(fn, "handler")

	return c.OnRaw(b.SendEvent.Name(), func(payload any) error {
		invokeID, req, err := decodeFrame[Req](payload)
		if invokeID == "" {
			c.logger.Debug("request without invokeId ignored", "tag", b.SendEvent.Name())
			return nil
		}
		if err != nil {
			emitError(c, b, invokeID, &RemoteError{Message: err.Error(), Code: CodeBadRequest, cause: err})
			return nil
		}

		err = c.submit(b.Base()+"/"+invokeID, func(ctx context.Context) error {
			start := time.Now()
			ctx, span := tracer().Start(WithInvokeID(ctx, invokeID), "eventa.handle", invokeAttributes(b.Base(), invokeID))

			res, err := runHandler(ctx, fn, req)
			if err != nil {
				emitError(c, b, invokeID, toRemoteError(err))
			} else {
				Emit(c, b.ReceiveEvent, Response[Res]{InvokeID: invokeID, Content: res})
			}

			endSpan(span, err)
			c.observer.InvokeCompleted(b.Base(), KindHandler, outcomeOf(err), time.Since(start))
			return nil
		})
		if err != nil {
			emitError(c, b, invokeID, toRemoteError(err))
		}
		return nil
	})
}

func runHandler[Req, Res any](ctx context.Context, fn HandlerFunc[Req, Res], req Req) (res Res, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: CodePanic, Message: fmt.Sprintf("handler panicked: %v", r)}
		}
	}()
	return fn(ctx, req)
}

func emitError[Req, Res any](c *EventContext, b Bundle[Req, Res], invokeID string, err *RemoteError) {
	Emit(c, b.ReceiveEventError, ErrorResponse{
		InvokeID: invokeID,
		Content:  ErrorContent{Error: err},
	})
}

func outcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// decodeFrame extracts invokeId and content from a bundle frame. The
// invokeId is returned whenever the frame itself is readable, so a content
// that fails to decode can still be matched to its call.
func decodeFrame[T any](payload any) (string, T, error) {
	var zero T
	switch f := payload.(type) {
	case Request[T]:
		return f.InvokeID, f.Content, nil
	case Response[T]:
		return f.InvokeID, f.Content, nil
	case ErrorResponse:
		if content, ok := any(f.Content).(T); ok {
			return f.InvokeID, content, nil
		}
	}

	raw, err := DecodePayload[Request[json.RawMessage]](payload)
	if err != nil || raw.InvokeID == "" {
		return "", zero, err
	}
	content, err := decodeRaw[T](raw.Content)
	if err != nil {
		return raw.InvokeID, zero, err
	}
	return raw.InvokeID, content, nil
}
