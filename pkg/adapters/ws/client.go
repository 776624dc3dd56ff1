package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/core/failfast"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

// ClientOptions configures a Client
type ClientOptions struct {
	// Header is sent with the handshake request
	Header http.Header

	// Dialer defaults to websocket.DefaultDialer
	Dialer *websocket.Dialer

	ReadLimit    int64
	WriteTimeout time.Duration

	// OutboxSize is the number of frames queued, including those emitted
	// before the connection opened
	OutboxSize int

	Logger  core.Logger
	Metrics *prometheus.Metrics
}

// Client is the single-connection topology. Attach returns at once and
// dials in the background; emissions made before the socket opens are
// queued and flushed once it does. There is no reconnect: after the socket
// closes, DisconnectedEvent fires and later emissions are dropped.
type Client struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	outboxSize int
	opts       connOptions

	connected chan struct{}
	done      chan struct{}

	mu     sync.Mutex
	outbox concurrency.Mailbox[[]byte]
	conn   *conn
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewClient creates a client adapter for url (ws:// or wss://)
func NewClient(url string, opts ClientOptions) *Client {
	failfast.NotEmpty(url, "url")
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	return &Client{
		url:        url,
		header:     opts.Header,
		dialer:     opts.Dialer,
		outboxSize: opts.OutboxSize,
		opts: connOptions{
			readLimit:    opts.ReadLimit,
			writeTimeout: opts.WriteTimeout,
			logger:       opts.Logger.With("component", "ws-client", "url", url),
			metrics:      opts.Metrics,
		},
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// URL returns the server address
func (c *Client) URL() string {
	return c.url
}

// Connected is closed once the socket is open
func (c *Client) Connected() <-chan struct{} {
	return c.connected
}

// Done is closed once the socket is closed or the dial failed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Attach implements core.Adapter
func (c *Client) Attach(emit core.EmitFunc) (core.Bridge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outbox != nil {
		return nil, ErrAlreadyAttached
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.outbox = concurrency.NewBoundedMailbox[[]byte](c.outboxSize)
	c.wg.Add(1)
	go c.run(ctx, emit)
	return c, nil
}

func (c *Client) run(ctx context.Context, emit core.EmitFunc) {
	defer c.wg.Done()
	defer close(c.done)

	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.outbox.Close()
		if ctx.Err() == nil {
			c.opts.logger.Warn("websocket dial failed", "error", err)
			emit(ErrorEvent.Name(), errorPayload(c.url, "", err))
			emit(DisconnectedEvent.Name(), ConnectedPayload{URL: c.url})
		}
		return
	}

	p := newConn("", ws, c.outbox, c.opts)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.close()
		return
	}
	c.conn = p
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		p.writePump()
	}()

	c.opts.metrics.PeerConnected(transportName)
	close(c.connected)
	emit(ConnectedEvent.Name(), ConnectedPayload{URL: c.url})

	err = p.readPump(func(frame []byte) {
		deliver(emit, frame, c.opts, c.url, "")
	})
	if unexpectedClose(err) {
		c.opts.logger.Warn("websocket connection failed", "error", err)
		emit(ErrorEvent.Name(), errorPayload(c.url, "", err))
	}

	p.close()
	c.opts.metrics.PeerDisconnected(transportName)
	emit(DisconnectedEvent.Name(), ConnectedPayload{URL: c.url})
}

// OnSent queues the emission for the server
func (c *Client) OnSent(tag string, payload any) {
	frame, err := core.EncodeEnvelope(tag, payload)
	if err != nil {
		c.opts.logger.Error("encode frame failed", "tag", tag, "error", err)
		return
	}
	c.mu.Lock()
	outbox := c.outbox
	c.mu.Unlock()
	if outbox != nil {
		enqueue(outbox, frame, c.opts, "")
	}
}

// OnReceived only traces local deliveries; frames are forwarded from OnSent
func (c *Client) OnReceived(tag string, _ any) {
	c.opts.logger.Debug("delivered", "tag", tag)
}

// Close closes the socket, or abandons the dial if it has not completed,
// and waits for the pumps to exit
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	p, cancel, outbox := c.conn, c.cancel, c.outbox
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.close()
	} else if outbox != nil {
		outbox.Close()
	}
	c.wg.Wait()
	return nil
}
