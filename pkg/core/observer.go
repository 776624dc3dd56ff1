package core

import (
	"time"
)

// InvokeKind distinguishes the call styles reported to an Observer
type InvokeKind string

const (
	KindInvoke        InvokeKind = "invoke"
	KindStream        InvokeKind = "stream"
	KindHandler       InvokeKind = "handler"
	KindStreamHandler InvokeKind = "stream_handler"
)

// Outcome is how a call finished
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Observer receives counters from an EventContext. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	// EventEmitted is called once per dispatch with the number of listeners run
	EventEmitted(tag string, listeners int, inbound bool)

	// ListenerFailed is called for every listener error or panic
	ListenerFailed(tag string, err error)

	// InvokeCompleted is called when a client call or a handler invocation settles
	InvokeCompleted(bundle string, kind InvokeKind, outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) EventEmitted(string, int, bool)                             {}
func (nopObserver) ListenerFailed(string, error)                               {}
func (nopObserver) InvokeCompleted(string, InvokeKind, Outcome, time.Duration) {}

// NopObserver returns an Observer that does nothing
func NopObserver() Observer {
	return nopObserver{}
}

type multiObserver []Observer

// MultiObserver fans out to every observer in order
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}

func (m multiObserver) EventEmitted(tag string, listeners int, inbound bool) {
	for _, o := range m {
		o.EventEmitted(tag, listeners, inbound)
	}
}

func (m multiObserver) ListenerFailed(tag string, err error) {
	for _, o := range m {
		o.ListenerFailed(tag, err)
	}
}

func (m multiObserver) InvokeCompleted(bundle string, kind InvokeKind, outcome Outcome, elapsed time.Duration) {
	for _, o := range m {
		o.InvokeCompleted(bundle, kind, outcome, elapsed)
	}
}
