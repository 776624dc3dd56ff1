// Package concurrency hides the goroutines and channels behind the event
// context: mailboxes queue frames and stream items, the executor runs each
// handler on its own goroutine under a concurrency bound.
package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrMailboxClosed is returned when sending to or receiving from a closed mailbox
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when a bounded mailbox has no room left
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a FIFO queue of T shared between producers and a consumer.
// Send never blocks; Receive blocks until a message arrives, the mailbox is
// closed or ctx ends.
//
// Bounded mailboxes refuse messages with ErrMailboxFull once Capacity are
// queued; websocket outboxes use them so a slow peer cannot stall emitters.
// Unbounded mailboxes accept everything while open; stream sinks use them
// because their producer is a listener that must not block.
//
// Close discards whatever is still queued. Pending and later Receive calls
// return ErrMailboxClosed.
type Mailbox[T any] interface {
	// Send enqueues msg without blocking
	Send(msg T) error

	// Receive dequeues the oldest message
	Receive(ctx context.Context) (T, error)

	// TryReceive dequeues without blocking; ok is false when the mailbox is empty
	TryReceive() (msg T, ok bool, err error)

	// Close closes the mailbox. Safe to call more than once.
	Close()

	// Capacity returns the bound, or 0 when unbounded
	Capacity() int

	// Size returns the number of queued messages
	Size() int

	IsClosed() bool
}
