package core

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// StreamHandlerFunc produces the items of one streaming call. A non-nil
// error in the sequence ends the stream with that error.
type StreamHandlerFunc[Req, Res any] func(ctx context.Context, req Req) iter.Seq2[Res, error]

// DefineStreamInvokeHandler serves streaming calls of bundle b with fn. Each
// item is emitted on b.ReceiveEvent, followed by one b.ReceiveEventStreamEnd.
// An item error is emitted on b.ReceiveEventError and stops the stream
// without a stream-end frame.
func DefineStreamInvokeHandler[Req, Res any](c *EventContext, b Bundle[Req, Res], fn StreamHandlerFunc[Req, Res]) Unsubscribe {
	failfast.NotNil(c, "event context")
	failfast.NotNil(fn, "handler")

	return c.OnRaw(b.SendEvent.Name(), func(payload any) error {
		invokeID, req, err := decodeFrame[Req](payload)
		if invokeID == "" {
			c.logger.Debug("stream request without invokeId ignored", "tag", b.SendEvent.Name())
			return nil
		}
		if err != nil {
			emitError(c, b, invokeID, &RemoteError{Message: err.Error(), Code: CodeBadRequest, cause: err})
			return nil
		}

		err = c.submit(b.Base()+"/"+invokeID, func(ctx context.Context) error {
			start := time.Now()
			ctx, span := tracer().Start(WithInvokeID(ctx, invokeID), "eventa.handle_stream", invokeAttributes(b.Base(), invokeID))

			err := driveStream(ctx, c, b, invokeID, fn, req)
			if err != nil {
				emitError(c, b, invokeID, toRemoteError(err))
			} else {
				Emit(c, b.ReceiveEventStreamEnd, StreamEnd{InvokeID: invokeID})
			}

			endSpan(span, err)
			c.observer.InvokeCompleted(b.Base(), KindStreamHandler, outcomeOf(err), time.Since(start))
			return nil
		})
		if err != nil {
			emitError(c, b, invokeID, toRemoteError(err))
		}
		return nil
	})
}

func driveStream[Req, Res any](ctx context.Context, c *EventContext, b Bundle[Req, Res], invokeID string, fn StreamHandlerFunc[Req, Res], req Req) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: CodePanic, Message: fmt.Sprintf("stream handler panicked: %v", r)}
		}
	}()

	seq := fn(ctx, req)
	if seq == nil {
		return nil
	}
	for item, itemErr := range seq {
		if itemErr != nil {
			return itemErr
		}
		Emit(c, b.ReceiveEvent, Response[Res]{InvokeID: invokeID, Content: item})
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// StreamEmitter is handed to handlers adapted by ToStreamHandler
type StreamEmitter[Req, Res any] struct {
	// Payload is the request content
	Payload Req

	ctx   context.Context
	slots *slotQueue[Res]
}

// Emit queues one item. Items are yielded in Emit order; calls after the
// handler returned are ignored.
func (e *StreamEmitter[Req, Res]) Emit(item Res) {
	e.slots.emit(item)
}

// Context is cancelled when the consumer stops early or the context closes
func (e *StreamEmitter[Req, Res]) Context() context.Context {
	return e.ctx
}

// ToStreamHandler adapts a handler that calls Emit repeatedly and then
// returns into a StreamHandlerFunc. The handler starts as soon as the
// request arrives and runs concurrently with consumption; its returned error
// is yielded after every item it emitted.
func ToStreamHandler[Req, Res any](h func(e *StreamEmitter[Req, Res]) error) StreamHandlerFunc[Req, Res] {
	failfast.NotNil(h, "handler")

	return func(ctx context.Context, req Req) iter.Seq2[Res, error] {
		ctx, cancel := context.WithCancel(ctx)
		slots := newSlotQueue[Res]()
		e := &StreamEmitter[Req, Res]{Payload: req, ctx: ctx, slots: slots}

		go func() {
			var err error
			defer func() {
				if r := recover(); r != nil {
					err = &Error{Code: CodePanic, Message: fmt.Sprintf("stream handler panicked: %v", r)}
				}
				slots.finish(err)
				cancel()
			}()
			err = h(e)
		}()

		return func(yield func(Res, error) bool) {
			defer cancel()
			for {
				item, done, err := slots.next(ctx)
				if err != nil {
					var zero Res
					yield(zero, err)
					return
				}
				if done {
					return
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

type slotValue[T any] struct {
	item T
	done bool
	err  error
}

// slotQueue is a queue of one-shot slots. The producer always fills the
// last slot and appends a fresh one; the consumer waits on the first.
type slotQueue[T any] struct {
	mu       sync.Mutex
	slots    []chan slotValue[T]
	finished bool
}

func newSlotQueue[T any]() *slotQueue[T] {
	return &slotQueue[T]{slots: []chan slotValue[T]{make(chan slotValue[T], 1)}}
}

func (q *slotQueue[T]) emit(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		return
	}
	q.slots[len(q.slots)-1] <- slotValue[T]{item: item}
	q.slots = append(q.slots, make(chan slotValue[T], 1))
}

func (q *slotQueue[T]) finish(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		return
	}
	q.finished = true
	q.slots[len(q.slots)-1] <- slotValue[T]{done: true, err: err}
}

func (q *slotQueue[T]) next(ctx context.Context) (T, bool, error) {
	var zero T

	q.mu.Lock()
	if len(q.slots) == 0 {
		q.mu.Unlock()
		return zero, true, nil
	}
	head := q.slots[0]
	q.mu.Unlock()

	var v slotValue[T]
	select {
	case v = <-head:
	case <-ctx.Done():
		// the producer cancels ctx after its last slot is filled
		select {
		case v = <-head:
		default:
			return zero, false, ctx.Err()
		}
	}

	q.mu.Lock()
	q.slots[0] = nil
	q.slots = q.slots[1:]
	q.mu.Unlock()
	if v.done {
		return zero, true, v.err
	}
	return v.item, false, nil
}
