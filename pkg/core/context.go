package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// Unsubscribe removes the registration that returned it. Calling it more
// than once is a no-op.
type Unsubscribe func()

type listener struct {
	id uint64
	fn func(payload any) error
}

// EventContextOptions configures an EventContext
type EventContextOptions struct {
	// Adapter connects the context to a transport; nil keeps it in-process
	Adapter Adapter

	// Logger defaults to NewDefaultLogger()
	Logger Logger

	// Observer defaults to NopObserver()
	Observer Observer

	// ExecutorConfig bounds the invoke and stream handlers running at
	// once; zero means concurrency.DefaultExecutorConfig()
	ExecutorConfig concurrency.ExecutorConfig
}

// EventContext is an in-process publish/subscribe hub. Each context owns its
// listener registry; nothing is shared between contexts.
//
// Dispatch is synchronous and snapshots the registry first: a listener
// registered while an emission is being dispatched does not see that
// emission. Listener errors and panics are logged and reported to the
// Observer; they never reach the emitter or stop sibling listeners.
type EventContext struct {
	mu            sync.RWMutex
	listeners     map[string][]*listener
	onceListeners map[string][]*listener
	nextID        uint64
	bridge        Bridge
	closed        bool

	ctx      context.Context
	cancel   context.CancelFunc
	executor *concurrency.Executor
	logger   Logger
	observer Observer
}

// NewEventContext creates an in-process EventContext bound to ctx
func NewEventContext(ctx context.Context) *EventContext {
	c, err := NewEventContextWithOptions(ctx, EventContextOptions{})
	failfast.Err(err)
	return c
}

// NewEventContextWithOptions creates an EventContext and attaches
// opts.Adapter. An attach failure is returned and nothing is left running.
func NewEventContextWithOptions(ctx context.Context, opts EventContextOptions) (*EventContext, error) {
	failfast.NotNil(ctx, "ctx")

	if opts.Logger == nil {
		opts.Logger = NewDefaultLogger()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver()
	}
	if opts.ExecutorConfig == (concurrency.ExecutorConfig{}) {
		opts.ExecutorConfig = concurrency.DefaultExecutorConfig()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &EventContext{
		listeners:     make(map[string][]*listener),
		onceListeners: make(map[string][]*listener),
		ctx:           ctx,
		cancel:        cancel,
		executor:      concurrency.NewExecutor(ctx, opts.ExecutorConfig),
		logger:        opts.Logger,
		observer:      opts.Observer,
	}

	if opts.Adapter != nil {
		bridge, err := opts.Adapter.Attach(c.Deliver)
		if err != nil {
			c.shutdown()
			return nil, fmt.Errorf("attach adapter: %w", err)
		}
		c.mu.Lock()
		c.bridge = bridge
		c.mu.Unlock()
	}
	return c, nil
}

// Context returns the context bound to the EventContext lifetime
func (c *EventContext) Context() context.Context {
	return c.ctx
}

// Logger returns the context's logger
func (c *EventContext) Logger() Logger {
	return c.logger
}

// ExecutorStats reports the handler executor counters
func (c *EventContext) ExecutorStats() concurrency.ExecutorStats {
	return c.executor.Stats()
}

// IsClosed reports whether Close has been called
func (c *EventContext) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// OnRaw registers fn for every future emission of tag
func (c *EventContext) OnRaw(tag string, fn func(payload any) error) Unsubscribe {
	return c.register(tag, fn, false)
}

// OnceRaw registers fn for the next emission of tag only
func (c *EventContext) OnceRaw(tag string, fn func(payload any) error) Unsubscribe {
	return c.register(tag, fn, true)
}

func (c *EventContext) register(tag string, fn func(payload any) error, once bool) Unsubscribe {
	failfast.NotNil(fn, "listener")
	failfast.Err(ValidateTag(tag))

	c.mu.Lock()
	c.nextID++
	l := &listener{id: c.nextID, fn: fn}
	if once {
		c.onceListeners[tag] = append(c.onceListeners[tag], l)
	} else {
		c.listeners[tag] = append(c.listeners[tag], l)
	}
	c.mu.Unlock()

	c.logger.Debug("listener registered", "tag", tag, "once", once)

	var removeOnce sync.Once
	return func() {
		removeOnce.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if once {
				c.onceListeners[tag] = removeListener(c.onceListeners, tag, l.id)
			} else {
				c.listeners[tag] = removeListener(c.listeners, tag, l.id)
			}
		})
	}
}

// removeListener returns the registry slice for tag without id. The slice is
// copied so snapshots taken by in-flight dispatches stay intact.
func removeListener(registry map[string][]*listener, tag string, id uint64) []*listener {
	current := registry[tag]
	idx := slices.IndexFunc(current, func(l *listener) bool { return l.id == id })
	if idx < 0 {
		return current
	}
	next := slices.Delete(slices.Clone(current), idx, idx+1)
	if len(next) == 0 {
		delete(registry, tag)
		return nil
	}
	return next
}

// OffTag removes every persistent and one-shot listener for tag
func (c *EventContext) OffTag(tag string) {
	c.mu.Lock()
	delete(c.listeners, tag)
	delete(c.onceListeners, tag)
	c.mu.Unlock()

	c.logger.Debug("listeners removed", "tag", tag)
}

// EmitRaw dispatches payload to the listeners of tag, then hands the
// emission to the adapter. Emissions on a closed context are dropped.
func (c *EventContext) EmitRaw(tag string, payload any) {
	bridge, ok := c.dispatch(tag, payload, false)
	if ok && bridge != nil {
		bridge.OnSent(tag, payload)
	}
}

// Deliver dispatches an inbound payload to local listeners only. It is the
// EmitFunc given to adapters.
func (c *EventContext) Deliver(tag string, payload any) {
	c.dispatch(tag, payload, true)
}

func (c *EventContext) dispatch(tag string, payload any, inbound bool) (Bridge, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("emit on closed context dropped", "tag", tag)
		return nil, false
	}
	persistent := c.listeners[tag]
	once := c.onceListeners[tag]
	delete(c.onceListeners, tag)
	bridge := c.bridge
	c.mu.Unlock()

	c.logger.Debug("emit", "tag", tag, "listeners", len(persistent)+len(once), "inbound", inbound)

	for _, l := range persistent {
		c.call(tag, l, payload, bridge)
	}
	for _, l := range once {
		c.call(tag, l, payload, bridge)
	}

	c.observer.EventEmitted(tag, len(persistent)+len(once), inbound)
	return bridge, true
}

func (c *EventContext) call(tag string, l *listener, payload any, bridge Bridge) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &Error{Code: CodePanic, Message: fmt.Sprintf("listener panicked: %v", r)}
			}
		}()
		return l.fn(payload)
	}()
	if err != nil {
		c.logger.Error("listener failed", "tag", tag, "error", err)
		c.observer.ListenerFailed(tag, err)
		return
	}
	if bridge != nil {
		bridge.OnReceived(tag, payload)
	}
}

// submit starts fn on its own goroutine unless the executor is at capacity
func (c *EventContext) submit(name string, fn concurrency.TaskFunc) error {
	if c.IsClosed() {
		return ErrContextClosed
	}
	if err := c.executor.Submit(concurrency.Named(name, fn)); err != nil {
		if errors.Is(err, concurrency.ErrExecutorClosed) {
			return ErrContextClosed
		}
		return &Error{Code: CodeRejected, Message: "handler rejected", Err: err}
	}
	return nil
}

// Close detaches the adapter, drops all listeners and stops the handler
// executor. Pending invoke and stream calls fail with ErrContextClosed.
func (c *EventContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	bridge := c.bridge
	c.bridge = nil
	c.listeners = make(map[string][]*listener)
	c.onceListeners = make(map[string][]*listener)
	c.mu.Unlock()

	var errs []error
	if bridge != nil {
		if err := bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close adapter: %w", err))
		}
	}
	if err := c.shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *EventContext) shutdown() error {
	c.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.executor.Shutdown(ctx)
}

// On registers fn for every future emission of tag. Payloads arriving as raw
// JSON from a transport are decoded into P; a decode failure is reported as
// a listener error.
func On[P any](c *EventContext, tag Tag[P], fn func(payload P) error) Unsubscribe {
	failfast.NotNil(fn, "listener")
	return c.OnRaw(tag.Name(), typed(fn))
}

// Once registers fn for the next emission of tag only
func Once[P any](c *EventContext, tag Tag[P], fn func(payload P) error) Unsubscribe {
	failfast.NotNil(fn, "listener")
	return c.OnceRaw(tag.Name(), typed(fn))
}

// Off removes every listener for tag
func Off[P any](c *EventContext, tag Tag[P]) {
	c.OffTag(tag.Name())
}

// Emit dispatches payload to every listener of tag
func Emit[P any](c *EventContext, tag Tag[P], payload P) {
	c.EmitRaw(tag.Name(), payload)
}

// Until returns a future settled by the next emission of tag: it resolves
// with mapFn's result or rejects with mapFn's error.
func Until[P, R any](c *EventContext, tag Tag[P], mapFn func(payload P) (R, error)) *Future[R] {
	failfast.NotNil(mapFn, "mapFn")

	f := newFuture[R]()
	f.cancel = c.OnceRaw(tag.Name(), func(payload any) (err error) {
		defer func() {
			if r := recover(); r != nil {
				f.reject(&Error{Code: CodePanic, Message: fmt.Sprintf("until mapper panicked: %v", r)})
			}
		}()

		p, err := DecodePayload[P](payload)
		if err != nil {
			f.reject(err)
			return err
		}
		v, err := mapFn(p)
		if err != nil {
			f.reject(err)
			return nil
		}
		f.resolve(v)
		return nil
	})
	return f
}

func typed[P any](fn func(payload P) error) func(any) error {
	return func(payload any) error {
		p, err := DecodePayload[P](payload)
		if err != nil {
			return err
		}
		return fn(p)
	}
}
