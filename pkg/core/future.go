package core

import (
	"context"
	"sync"
)

// Future is a value that becomes available once. It settles at most once;
// later resolve/reject calls are ignored.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	value  T
	err    error
	cancel func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

func (f *Future[T]) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends. A settled result wins
// over a ctx that ended at the same time. Returning because of ctx does not
// cancel the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancel removes the listener backing the future and rejects it with
// context.Canceled if it has not settled yet
func (f *Future[T]) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
	f.reject(context.Canceled)
}
