package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

const transportName = "ws"

// Defaults shared by client and server
const (
	DefaultReadLimit    = 1 << 20
	DefaultWriteTimeout = 10 * time.Second
	DefaultOutboxSize   = 256
)

// connOptions are the knobs common to both topologies
type connOptions struct {
	readLimit    int64
	writeTimeout time.Duration
	logger       core.Logger
	metrics      *prometheus.Metrics
}

// conn owns one websocket. All writes go through the outbox and a single
// write pump, so gorilla's one-writer rule holds no matter how many
// goroutines emit.
type conn struct {
	id     string
	ws     *websocket.Conn
	outbox concurrency.Mailbox[[]byte]
	opts   connOptions

	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, outbox concurrency.Mailbox[[]byte], opts connOptions) *conn {
	ws.SetReadLimit(opts.readLimit)
	return &conn{id: id, ws: ws, outbox: outbox, opts: opts}
}

// enqueue queues a frame for writing. A full outbox drops the frame.
func enqueue(outbox concurrency.Mailbox[[]byte], frame []byte, opts connOptions, id string) {
	err := outbox.Send(frame)
	switch {
	case err == nil:
	case errors.Is(err, concurrency.ErrMailboxFull):
		opts.metrics.FrameDropped(transportName)
		opts.logger.Warn("outbox full, frame dropped", "peer_id", id)
	default:
		opts.logger.Debug("frame for closed connection dropped", "peer_id", id)
	}
}

func (c *conn) writePump() {
	for {
		msg, err := c.outbox.Receive(context.Background())
		if err != nil {
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.opts.logger.Debug("websocket write failed", "peer_id", c.id, "error", err)
			c.close()
			return
		}
		c.opts.metrics.FrameOut(transportName)
	}
}

// readPump hands every data frame to fn until the connection fails
func (c *conn) readPump(fn func(frame []byte)) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		c.opts.metrics.FrameIn(transportName)
		fn(data)
	}
}

// close stops the write pump and closes the socket. Queued frames are
// discarded.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

// deliver decodes a frame and feeds it to emit. Undecodable frames raise
// ErrorEvent instead.
func deliver(emit core.EmitFunc, frame []byte, opts connOptions, url, id string) {
	env, err := core.DecodeEnvelope(frame)
	if err != nil {
		opts.metrics.DecodeFailed(transportName)
		opts.logger.Warn("undecodable frame", "peer_id", id, "error", err)
		emit(ErrorEvent.Name(), errorPayload(url, id, err))
		return
	}
	emit(env.Type, env.Payload)
}

// unexpectedClose reports whether err ended the connection abnormally
func unexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	)
}
