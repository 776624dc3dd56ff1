package concurrency

import (
	"context"
	"sync"
)

// DefaultMailboxCapacity is used when a bounded mailbox is asked for less than one slot
const DefaultMailboxCapacity = 100

type boundedMailbox[T any] struct {
	// Close holds mu exclusively, Send shares it, so a message is never
	// queued after Close returned.
	mu     sync.RWMutex
	closed bool
	ch     chan T
	done   chan struct{}
}

// NewBoundedMailbox creates a mailbox holding at most capacity messages
func NewBoundedMailbox[T any](capacity int) Mailbox[T] {
	if capacity < 1 {
		capacity = DefaultMailboxCapacity
	}
	return &boundedMailbox[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

func (mb *boundedMailbox[T]) Send(msg T) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrMailboxClosed
	}
	select {
	case mb.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (mb *boundedMailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg := <-mb.ch:
		if mb.IsClosed() {
			return zero, ErrMailboxClosed
		}
		return msg, nil
	case <-mb.done:
		return zero, ErrMailboxClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (mb *boundedMailbox[T]) TryReceive() (T, bool, error) {
	var zero T
	if mb.IsClosed() {
		return zero, false, ErrMailboxClosed
	}
	select {
	case msg := <-mb.ch:
		return msg, true, nil
	default:
		return zero, false, nil
	}
}

func (mb *boundedMailbox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
	for {
		select {
		case <-mb.ch:
		default:
			return
		}
	}
}

func (mb *boundedMailbox[T]) Capacity() int {
	return cap(mb.ch)
}

func (mb *boundedMailbox[T]) Size() int {
	return len(mb.ch)
}

func (mb *boundedMailbox[T]) IsClosed() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.closed
}
