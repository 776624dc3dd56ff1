package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

// DefaultPath is where the server accepts websocket upgrades
const DefaultPath = "/ws"

// ErrAlreadyAttached is returned when an adapter is attached to a second context
var ErrAlreadyAttached = errors.New("ws: adapter already attached")

// ServerOptions configures a Server
type ServerOptions struct {
	// Path to accept upgrades on (default "/ws")
	Path string

	// ReadLimit caps the size of an inbound frame in bytes
	ReadLimit int64

	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration

	// OutboxSize is the number of frames queued per peer before frames are dropped
	OutboxSize int

	// CheckOrigin overrides the upgrader's origin check. All origins are
	// accepted when nil.
	CheckOrigin func(r *http.Request) bool

	Logger  core.Logger
	Metrics *prometheus.Metrics
}

// Server is the broadcast topology: an http.Handler holding every connected
// peer. Each outbound emission is encoded once and queued on every peer.
// Inbound frames from any peer are emitted into the attached context.
type Server struct {
	path       string
	outboxSize int
	opts       connOptions
	upgrader   websocket.Upgrader

	mu     sync.RWMutex
	emit   core.EmitFunc
	peers  map[string]*conn
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server adapter. It serves nothing until attached to
// an EventContext.
func NewServer(opts ServerOptions) *Server {
	if opts.Path == "" {
		opts.Path = DefaultPath
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
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &Server{
		path:       opts.Path,
		outboxSize: opts.OutboxSize,
		opts: connOptions{
			readLimit:    opts.ReadLimit,
			writeTimeout: opts.WriteTimeout,
			logger:       opts.Logger.With("component", "ws-server"),
			metrics:      opts.Metrics,
		},
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		peers:    make(map[string]*conn),
	}
}

// Path returns the upgrade path
func (s *Server) Path() string {
	return s.path
}

// Attach implements core.Adapter
func (s *Server) Attach(emit core.EmitFunc) (core.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emit != nil {
		return nil, ErrAlreadyAttached
	}
	s.emit = emit
	return s, nil
}

// ServeHTTP upgrades requests on the configured path
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	emit, closed := s.emit, s.closed
	s.mu.RUnlock()
	if emit == nil || closed {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.opts.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := newConn(uuid.NewString(), ws, concurrency.NewBoundedMailbox[[]byte](s.outboxSize), s.opts)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.close()
		return
	}
	s.peers[p.id] = p
	s.wg.Add(2)
	s.mu.Unlock()

	s.opts.metrics.PeerConnected(transportName)
	s.opts.logger.Debug("peer connected", "peer_id", p.id, "remote", r.RemoteAddr)

	go func() {
		defer s.wg.Done()
		p.writePump()
	}()
	go func() {
		defer s.wg.Done()
		s.serve(p, emit)
	}()
}

func (s *Server) serve(p *conn, emit core.EmitFunc) {
	emit(ConnectedEvent.Name(), ConnectedPayload{ID: p.id})

	err := p.readPump(func(frame []byte) {
		deliver(emit, frame, s.opts, "", p.id)
	})
	if unexpectedClose(err) {
		s.opts.logger.Warn("peer connection failed", "peer_id", p.id, "error", err)
		emit(ErrorEvent.Name(), errorPayload("", p.id, err))
	}

	s.remove(p)
	emit(DisconnectedEvent.Name(), ConnectedPayload{ID: p.id})
}

func (s *Server) remove(p *conn) {
	s.mu.Lock()
	if s.peers[p.id] == p {
		delete(s.peers, p.id)
	}
	s.mu.Unlock()

	p.close()
	s.opts.metrics.PeerDisconnected(transportName)
	s.opts.logger.Debug("peer disconnected", "peer_id", p.id)
}

// Peers returns the ids of the connected peers
func (s *Server) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// OnSent broadcasts the emission to every connected peer
func (s *Server) OnSent(tag string, payload any) {
	frame, err := core.EncodeEnvelope(tag, payload)
	if err != nil {
		s.opts.logger.Error("encode frame failed", "tag", tag, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, p := range s.peers {
		enqueue(p.outbox, frame, s.opts, id)
	}
}

// OnReceived only traces local deliveries; frames are forwarded from OnSent
func (s *Server) OnReceived(tag string, _ any) {
	s.opts.logger.Debug("delivered", "tag", tag)
}

// Close disconnects every peer and waits for their pumps to exit. Later
// upgrade requests are refused.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := s.peers
	s.peers = make(map[string]*conn)
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	s.wg.Wait()
	return nil
}
