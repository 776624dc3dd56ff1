package core

import (
	"errors"
	"fmt"
	"sync"
)

// EmitFunc feeds an inbound event into an EventContext. Adapters call it for
// every decoded wire frame; the context dispatches to local listeners and
// does not hand the event back to OnSent.
type EmitFunc func(tag string, payload any)

// Bridge is the live side of an attached adapter
type Bridge interface {
	// OnSent is called after every local emission has been dispatched
	OnSent(tag string, payload any)

	// OnReceived is called after each listener handled a payload
	OnReceived(tag string, payload any)

	// Close releases the transport
	Close() error
}

// Adapter connects an EventContext to a transport
type Adapter interface {
	// Attach is called once by the context with the function inbound frames
	// must be delivered through
	Attach(emit EmitFunc) (Bridge, error)
}

// AdapterFunc adapts a function to Adapter
type AdapterFunc func(emit EmitFunc) (Bridge, error)

// Attach implements Adapter
func (f AdapterFunc) Attach(emit EmitFunc) (Bridge, error) {
	return f(emit)
}

// BridgeFuncs builds a Bridge from optional callbacks
type BridgeFuncs struct {
	Sent     func(tag string, payload any)
	Received func(tag string, payload any)
	Cleanup  func() error
}

func (b BridgeFuncs) OnSent(tag string, payload any) {
	if b.Sent != nil {
		b.Sent(tag, payload)
	}
}

func (b BridgeFuncs) OnReceived(tag string, payload any) {
	if b.Received != nil {
		b.Received(tag, payload)
	}
}

func (b BridgeFuncs) Close() error {
	if b.Cleanup != nil {
		return b.Cleanup()
	}
	return nil
}

// ChainAdapters attaches several adapters to one context. Every hook fans out
// to all bridges. If one adapter fails to attach, the bridges already
// attached are closed.
func ChainAdapters(adapters ...Adapter) Adapter {
	return AdapterFunc(func(emit EmitFunc) (Bridge, error) {
		bridges := make(multiBridge, 0, len(adapters))
		for i, a := range adapters {
			if a == nil {
				continue
			}
			b, err := a.Attach(emit)
			if err != nil {
				_ = bridges.Close()
				return nil, fmt.Errorf("attach adapter %d: %w", i, err)
			}
			bridges = append(bridges, b)
		}
		return bridges, nil
	})
}

type multiBridge []Bridge

func (m multiBridge) OnSent(tag string, payload any) {
	for _, b := range m {
		b.OnSent(tag, payload)
	}
}

func (m multiBridge) OnReceived(tag string, payload any) {
	for _, b := range m {
		b.OnReceived(tag, payload)
	}
}

func (m multiBridge) Close() error {
	var errs []error
	for _, b := range m {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RelayAdapters attaches several adapters like ChainAdapters and also relays
// between them: a frame arriving on one transport is dispatched locally and
// forwarded to every other transport, never back to the one it came from.
func RelayAdapters(adapters ...Adapter) Adapter {
	return AdapterFunc(func(emit EmitFunc) (Bridge, error) {
		r := &relay{}
		for i, a := range adapters {
			if a == nil {
				continue
			}
			from := len(r.bridges)
			b, err := a.Attach(func(tag string, payload any) {
				emit(tag, payload)
				r.forward(from, tag, payload)
			})
			if err != nil {
				_ = r.Close()
				return nil, fmt.Errorf("attach adapter %d: %w", i, err)
			}
			r.mu.Lock()
			r.bridges = append(r.bridges, b)
			r.mu.Unlock()
		}
		return r, nil
	})
}

type relay struct {
	mu      sync.RWMutex
	bridges multiBridge
}

func (r *relay) snapshot() multiBridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bridges
}

func (r *relay) forward(from int, tag string, payload any) {
	for i, b := range r.snapshot() {
		if i != from {
			b.OnSent(tag, payload)
		}
	}
}

func (r *relay) OnSent(tag string, payload any) {
	r.snapshot().OnSent(tag, payload)
}

func (r *relay) OnReceived(tag string, payload any) {
	r.snapshot().OnReceived(tag, payload)
}

func (r *relay) Close() error {
	return r.snapshot().Close()
}
