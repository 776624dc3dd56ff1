package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/eventa/pkg/core/concurrency"
)

// newTestContext returns a context with a silent logger that is closed at
// the end of the test
func newTestContext(t *testing.T, adapter Adapter) *EventContext {
	t.Helper()
	c, err := NewEventContextWithOptions(context.Background(), EventContextOptions{
		Adapter: adapter,
		Logger:  NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("NewEventContextWithOptions() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (c *EventContext) listenerCount(tag string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[tag]) + len(c.onceListeners[tag])
}

// pipe connects two contexts the way a socket would: every local emission
// on one side is encoded as an envelope and delivered, in order, to the
// other side by a pump goroutine.
type pipe struct {
	mu    sync.Mutex
	emits [2]EmitFunc
	boxes [2]concurrency.Mailbox[[]byte]
	wg    sync.WaitGroup
}

func newPipe() *pipe {
	return &pipe{boxes: [2]concurrency.Mailbox[[]byte]{
		concurrency.NewUnboundedMailbox[[]byte](),
		concurrency.NewUnboundedMailbox[[]byte](),
	}}
}

// end returns the adapter for side i (0 or 1)
func (p *pipe) end(i int) Adapter {
	return AdapterFunc(func(emit EmitFunc) (Bridge, error) {
		p.mu.Lock()
		p.emits[i] = emit
		p.mu.Unlock()

		inbox := p.boxes[i]
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				msg, err := inbox.Receive(context.Background())
				if err != nil {
					return
				}
				env, err := DecodeEnvelope(msg)
				if err != nil {
					continue
				}
				emit(env.Type, env.Payload)
			}
		}()

		peer := p.boxes[1-i]
		return BridgeFuncs{
			Sent: func(tag string, payload any) {
				frame, err := EncodeEnvelope(tag, payload)
				if err != nil {
					return
				}
				_ = peer.Send(frame)
			},
			Cleanup: func() error {
				inbox.Close()
				return nil
			},
		}, nil
	})
}

func (p *pipe) wait() {
	p.wg.Wait()
}

// eventually polls cond until it holds or a second passed
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
