package concurrency

import (
	"context"
	"sync"
)

// unboundedMailbox keeps messages in a growable slice. Receivers sleep on a
// one-slot wake channel that every Send re-arms.
type unboundedMailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewUnboundedMailbox creates a mailbox whose Send never fails while open
func NewUnboundedMailbox[T any]() Mailbox[T] {
	return &unboundedMailbox[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (mb *unboundedMailbox[T]) notify() {
	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

func (mb *unboundedMailbox[T]) Send(msg T) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrMailboxClosed
	}
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()
	mb.notify()
	return nil
}

func (mb *unboundedMailbox[T]) Receive(ctx context.Context) (T, error) {
	for {
		msg, ok, err := mb.TryReceive()
		if err != nil || ok {
			return msg, err
		}
		select {
		case <-mb.wake:
		case <-mb.done:
			var zero T
			return zero, ErrMailboxClosed
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (mb *unboundedMailbox[T]) TryReceive() (T, bool, error) {
	var zero T
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return zero, false, ErrMailboxClosed
	}
	if len(mb.queue) == 0 {
		return zero, false, nil
	}

	msg := mb.queue[0]
	mb.queue[0] = zero
	mb.queue = mb.queue[1:]
	if len(mb.queue) > 0 {
		// another receiver may be asleep
		mb.notify()
	}
	return msg, true, nil
}

func (mb *unboundedMailbox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	mb.queue = nil
	close(mb.done)
}

func (mb *unboundedMailbox[T]) Capacity() int {
	return 0
}

func (mb *unboundedMailbox[T]) Size() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

func (mb *unboundedMailbox[T]) IsClosed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}
