// Package natsbridge relays events between processes over a NATS subject.
//
// Every process attached to the same subject receives the envelopes the
// others emit. With a websocket server relayed to NATS, several server
// instances behave as one broadcast domain.
package natsbridge

import (
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

const transportName = "nats"

// HeaderTag carries the event tag so subscribers can filter without decoding
const HeaderTag = "Eventa-Tag"

// DefaultSubject is used when Config.Subject is empty
const DefaultSubject = "eventa.events"

// Config configures the bridge
type Config struct {
	// URL is the NATS server URL. Default: nats.DefaultURL
	URL string

	// Subject all envelopes are published on and received from
	Subject string

	// Name is an optional NATS connection name
	Name string

	// FlushTimeout bounds the flush performed on Close. Default: 2s
	FlushTimeout time.Duration

	Logger  core.Logger
	Metrics *prometheus.Metrics
}

// Bridge is a core.Adapter backed by one NATS connection. The connection is
// opened with NoEcho, so a process never receives its own emissions back.
type Bridge struct {
	cfg    Config
	logger core.Logger

	mu  sync.Mutex
	nc  *nats.Conn
	sub *nats.Subscription
}

// New returns an unattached bridge
func New(cfg Config) *Bridge {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewDefaultLogger()
	}
	return &Bridge{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "natsbridge", "subject", cfg.Subject),
	}
}

// Attach connects to NATS and subscribes to the subject
func (b *Bridge) Attach(emit core.EmitFunc) (core.Bridge, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil {
		return nil, errors.New("natsbridge: already attached")
	}

	opts := []nats.Option{nats.NoEcho()}
	if b.cfg.Name != "" {
		opts = append(opts, nats.Name(b.cfg.Name))
	}
	nc, err := nats.Connect(b.cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	sub, err := nc.Subscribe(b.cfg.Subject, func(msg *nats.Msg) {
		b.cfg.Metrics.FrameIn(transportName)
		env, err := core.DecodeEnvelope(msg.Data)
		if err != nil {
			b.cfg.Metrics.DecodeFailed(transportName)
			b.logger.Warn("undecodable message", "error", err)
			return
		}
		emit(env.Type, env.Payload)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	b.nc, b.sub = nc, sub
	b.cfg.Metrics.PeerConnected(transportName)
	b.logger.Info("connected", "url", nc.ConnectedUrl())
	return b, nil
}

// OnSent publishes the emission
func (b *Bridge) OnSent(tag string, payload any) {
	b.mu.Lock()
	nc := b.nc
	b.mu.Unlock()
	if nc == nil {
		return
	}

	data, err := core.EncodeEnvelope(tag, payload)
	if err != nil {
		b.logger.Error("encode envelope failed", "tag", tag, "error", err)
		return
	}
	msg := &nats.Msg{Subject: b.cfg.Subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(HeaderTag, tag)
	if err := nc.PublishMsg(msg); err != nil {
		b.cfg.Metrics.FrameDropped(transportName)
		b.logger.Warn("publish failed", "tag", tag, "error", err)
		return
	}
	b.cfg.Metrics.FrameOut(transportName)
}

// OnReceived is a no-op; NATS only carries local emissions
func (b *Bridge) OnReceived(string, any) {}

// Close unsubscribes, flushes pending publishes and closes the connection
func (b *Bridge) Close() error {
	b.mu.Lock()
	nc, sub := b.nc, b.sub
	b.nc, b.sub = nil, nil
	b.mu.Unlock()
	if nc == nil {
		return nil
	}

	var errs []error
	if err := sub.Unsubscribe(); err != nil {
		errs = append(errs, err)
	}
	if err := nc.FlushTimeout(b.cfg.FlushTimeout); err != nil {
		errs = append(errs, err)
	}
	nc.Close()
	b.cfg.Metrics.PeerDisconnected(transportName)
	return errors.Join(errs...)
}
