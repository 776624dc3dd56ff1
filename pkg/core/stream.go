package core

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// StreamState is the lifecycle of one streaming call
type StreamState int

const (
	StreamActive StreamState = iota
	StreamEnded
	StreamErrored
	StreamCancelled
)

func (s StreamState) String() string {
	switch s {
	case StreamActive:
		return "active"
	case StreamEnded:
		return "ended"
	case StreamErrored:
		return "errored"
	case StreamCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StreamInvokeFunc starts one streaming call
type StreamInvokeFunc[Req, Res any] func(ctx context.Context, req Req) (*Stream[Res], error)

type streamEntry[T any] struct {
	item T
	end  bool
	err  error
}

// Stream is the consuming side of a streaming call. Items are buffered
// without bound until read, in the order they arrived.
//
// A stream leaves the active state exactly once: ended by the handler,
// errored by an error frame, or cancelled locally. Cancelling only removes
// this call's listeners; the handler is not told.
type Stream[T any] struct {
	invokeID string
	mailbox  concurrency.Mailbox[streamEntry[T]]

	mu        sync.Mutex
	state     StreamState
	stops     []func()
	settle    func(Outcome, error)
	settleOne sync.Once
}

// DefineStreamInvoke returns a function that sends a request on b.SendEvent
// and streams every b.ReceiveEvent carrying the same invokeId. The stream is
// cancelled when ctx ends.
func DefineStreamInvoke[Req, Res any](c *EventContext, b Bundle[Req, Res]) StreamInvokeFunc[Req, Res] {
	failfast.NotNil(c, "event context")

	return func(ctx context.Context, req Req) (*Stream[Res], error) {
		if c.IsClosed() {
			return nil, ErrContextClosed
		}

		invokeID := NewID()
		start := time.Now()
		_, span := tracer().Start(ctx, "eventa.stream", invokeAttributes(b.Base(), invokeID))

		s := &Stream[Res]{
			invokeID: invokeID,
			mailbox:  concurrency.NewUnboundedMailbox[streamEntry[Res]](),
		}
		s.settle = func(outcome Outcome, err error) {
			endSpan(span, err)
			c.observer.InvokeCompleted(b.Base(), KindStream, outcome, time.Since(start))
		}

		// held so a frame racing in from a transport waits for the stop list
		s.mu.Lock()
		s.stops = append(s.stops,
			c.OnRaw(b.ReceiveEvent.Name(), func(payload any) error {
				id, item, err := decodeFrame[Res](payload)
				if id != invokeID {
					return nil
				}
				if err != nil {
					s.finish(StreamErrored, streamEntry[Res]{err: err})
					return err
				}
				s.push(item)
				return nil
			}),
			c.OnRaw(b.ReceiveEventError.Name(), func(payload any) error {
				id, content, err := decodeFrame[ErrorContent](payload)
				if id != invokeID {
					return nil
				}
				if err != nil {
					s.finish(StreamErrored, streamEntry[Res]{err: err})
					return err
				}
				s.finish(StreamErrored, streamEntry[Res]{err: content.err()})
				return nil
			}),
			On(c, b.ReceiveEventStreamEnd, func(end StreamEnd) error {
				if end.InvokeID == invokeID {
					s.finish(StreamEnded, streamEntry[Res]{end: true})
				}
				return nil
			}),
		)
		stopOnDone := context.AfterFunc(ctx, s.Cancel)
		stopOnClose := context.AfterFunc(c.Context(), func() {
			s.finish(StreamErrored, streamEntry[Res]{err: ErrContextClosed})
		})
		s.stops = append(s.stops, func() { stopOnDone() }, func() { stopOnClose() })
		s.mu.Unlock()

		Emit(c, b.SendEvent, Request[Req]{InvokeID: invokeID, Content: req})
		return s, nil
	}
}

// InvokeID returns the correlation id of the call
func (s *Stream[T]) InvokeID() string {
	return s.invokeID
}

// State returns the current lifecycle state
func (s *Stream[T]) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream[T]) push(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StreamActive {
		return
	}
	_ = s.mailbox.Send(streamEntry[T]{item: item})
}

func (s *Stream[T]) finish(state StreamState, terminal streamEntry[T]) {
	s.mu.Lock()
	if s.state != StreamActive {
		s.mu.Unlock()
		return
	}
	s.state = state
	_ = s.mailbox.Send(terminal)
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	outcome := OutcomeOK
	if terminal.err != nil {
		outcome = OutcomeError
	}
	s.report(outcome, terminal.err)
}

// Cancel stops the stream locally. Buffered items are discarded and any
// blocked Recv returns ErrStreamCancelled. No-op once the stream has ended.
func (s *Stream[T]) Cancel() {
	s.mu.Lock()
	if s.state != StreamActive {
		s.mu.Unlock()
		return
	}
	s.state = StreamCancelled
	s.mailbox.Close()
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.report(OutcomeCancelled, nil)
}

func (s *Stream[T]) report(outcome Outcome, err error) {
	s.settleOne.Do(func() {
		if s.settle != nil {
			s.settle(outcome, err)
		}
	})
}

// Recv returns the next item. It returns io.EOF after the handler ended the
// stream, the handler's error after an error frame, and ErrStreamCancelled
// after Cancel. Terminal results repeat on later calls.
func (s *Stream[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	entry, err := s.mailbox.Receive(ctx)
	if err != nil {
		if errors.Is(err, concurrency.ErrMailboxClosed) {
			return zero, ErrStreamCancelled
		}
		return zero, err
	}

	switch {
	case entry.err != nil:
		_ = s.mailbox.Send(entry)
		return zero, entry.err
	case entry.end:
		_ = s.mailbox.Send(entry)
		return zero, io.EOF
	}
	return entry.item, nil
}

// Seq yields items until the stream ends. An error is yielded once as the
// last pair. Breaking out of the loop cancels the stream.
func (s *Stream[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, err := s.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(item, err)
				s.Cancel()
				return
			}
			if !yield(item, nil) {
				s.Cancel()
				return
			}
		}
	}
}

// All collects every item. On error the items received so far are returned
// with it.
func (s *Stream[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	for item, err := range s.Seq(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
