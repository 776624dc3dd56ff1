package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/fluxorio/eventa/pkg/core"
)

type greeting struct {
	Name string `json:"name"`
}

var (
	helloBundle = core.DefineInvokeBundle[greeting, string]("test:ws:hello")
	countBundle = core.DefineInvokeBundle[int, int]("test:ws:count")
	notice      = core.DefineTag[string]("test:ws:notice")
)

func newContext(t *testing.T, adapter core.Adapter) *core.EventContext {
	t.Helper()
	c, err := core.NewEventContextWithOptions(context.Background(), core.EventContextOptions{
		Adapter: adapter,
		Logger:  core.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("NewEventContextWithOptions() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// startServer attaches a Server to a fresh context and serves it over httptest
func startServer(t *testing.T) (*core.EventContext, *Server, string) {
	t.Helper()
	srv := NewServer(ServerOptions{Logger: core.NewNopLogger()})
	c := newContext(t, srv)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return c, srv, "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultPath
}

func connectClient(t *testing.T, url string) (*core.EventContext, *Client) {
	t.Helper()
	cl := NewClient(url, ClientOptions{Logger: core.NewNopLogger()})
	c := newContext(t, cl)
	select {
	case <-cl.Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}
	return c, cl
}

func waitPeers(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(srv.Peers()) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Peers() = %d, want %d", len(srv.Peers()), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func collect[P any](c *core.EventContext, tag core.Tag[P]) <-chan P {
	ch := make(chan P, 16)
	core.On(c, tag, func(p P) error {
		ch <- p
		return nil
	})
	return ch
}

func TestServer_BroadcastsToEveryPeer(t *testing.T) {
	server, srv, url := startServer(t)

	var inboxes []<-chan string
	for range 3 {
		c, _ := connectClient(t, url)
		inboxes = append(inboxes, collect(c, notice))
	}
	waitPeers(t, srv, 3)

	core.Emit(server, notice, "hello all")
	for i, inbox := range inboxes {
		if got := receive(t, inbox); got != "hello all" {
			t.Errorf("peer %d received %q, want %q", i, got, "hello all")
		}
	}
}

func TestServer_LifecycleEvents(t *testing.T) {
	server, srv, url := startServer(t)
	connected := collect(server, ConnectedEvent)
	disconnected := collect(server, DisconnectedEvent)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	opened := receive(t, connected)
	if opened.ID == "" {
		t.Fatal("ConnectedEvent without peer id")
	}
	waitPeers(t, srv, 1)
	if got := srv.Peers(); got[0] != opened.ID {
		t.Errorf("Peers() = %v, want [%s]", got, opened.ID)
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()

	closed := receive(t, disconnected)
	if diff := cmp.Diff(opened, closed); diff != "" {
		t.Errorf("DisconnectedEvent mismatch (-want +got):\n%s", diff)
	}
	waitPeers(t, srv, 0)
}

func TestServer_DecodeFailureRaisesErrorEvent(t *testing.T) {
	server, _, url := startServer(t)
	connected := collect(server, ConnectedEvent)
	failures := collect(server, ErrorEvent)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	peer := receive(t, connected)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	got := receive(t, failures)
	if got.ID != peer.ID {
		t.Errorf("ErrorEvent.ID = %q, want %q", got.ID, peer.ID)
	}
	var decodeErr *core.DecodeError
	if !errors.As(got.Err, &decodeErr) {
		t.Errorf("ErrorEvent.Err = %v, want *core.DecodeError", got.Err)
	}
}

func TestServer_ForwardsInboundFrames(t *testing.T) {
	server, _, url := startServer(t)
	inbox := collect(server, notice)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	frame, err := core.EncodeEnvelope(notice.Name(), "from peer")
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := receive(t, inbox); got != "from peer" {
		t.Errorf("received %q, want %q", got, "from peer")
	}
}

func TestServer_RejectsBeforeAttachAndOffPath(t *testing.T) {
	srv := NewServer(ServerOptions{Logger: core.NewNopLogger()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tests := []struct {
		path string
		want int
	}{
		{DefaultPath, http.StatusServiceUnavailable},
		{"/other", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := ts.Client().Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s error = %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestServer_CloseDisconnectsPeers(t *testing.T) {
	server, srv, url := startServer(t)
	_, cl := connectClient(t, url)
	waitPeers(t, srv, 1)

	if err := server.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := len(srv.Peers()); n != 0 {
		t.Errorf("Peers() after Close = %d, want 0", n)
	}
	select {
	case <-cl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client still connected after server Close")
	}
}

// attachLater returns a context with no adapter and attaches cl by hand, so
// listeners can be registered before the dial completes
func attachLater(t *testing.T, cl *Client, register func(c *core.EventContext)) {
	t.Helper()
	c := newContext(t, nil)
	register(c)
	if _, err := cl.Attach(c.Deliver); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() { cl.Close() })
}

func TestClient_LifecycleEvents(t *testing.T) {
	server, _, url := startServer(t)

	var connected, disconnected <-chan ConnectedPayload
	cl := NewClient(url, ClientOptions{Logger: core.NewNopLogger()})
	attachLater(t, cl, func(c *core.EventContext) {
		connected = collect(c, ConnectedEvent)
		disconnected = collect(c, DisconnectedEvent)
	})

	want := ConnectedPayload{URL: url}
	if diff := cmp.Diff(want, receive(t, connected)); diff != "" {
		t.Errorf("ConnectedEvent mismatch (-want +got):\n%s", diff)
	}

	server.Close()
	if diff := cmp.Diff(want, receive(t, disconnected)); diff != "" {
		t.Errorf("DisconnectedEvent mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	url := "ws://" + ln.Addr().String() + DefaultPath
	ln.Close()

	var failures <-chan ErrorPayload
	var disconnected <-chan ConnectedPayload
	cl := NewClient(url, ClientOptions{Logger: core.NewNopLogger()})
	attachLater(t, cl, func(c *core.EventContext) {
		failures = collect(c, ErrorEvent)
		disconnected = collect(c, DisconnectedEvent)
	})

	got := receive(t, failures)
	if got.URL != url || got.Err == nil {
		t.Errorf("ErrorEvent = %+v, want url %q with an error", got, url)
	}
	receive(t, disconnected)

	select {
	case <-cl.Connected():
		t.Error("Connected() closed after failed dial")
	default:
	}
}

func TestClient_QueuesEmissionsUntilOpen(t *testing.T) {
	server, _, url := startServer(t)
	inbox := collect(server, notice)

	cl := NewClient(url, ClientOptions{Logger: core.NewNopLogger()})
	c := newContext(t, cl)
	core.Emit(c, notice, "early")

	if got := receive(t, inbox); got != "early" {
		t.Errorf("received %q, want %q", got, "early")
	}
}

func TestClient_AttachTwice(t *testing.T) {
	_, _, url := startServer(t)
	_, cl := connectClient(t, url)
	if _, err := cl.Attach(func(string, any) {}); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("second Attach() error = %v, want ErrAlreadyAttached", err)
	}
}

func TestInvokeOverWebSocket(t *testing.T) {
	server, srv, url := startServer(t)
	core.DefineInvokeHandler(server, helloBundle, func(ctx context.Context, g greeting) (string, error) {
		if g.Name == "" {
			return "", core.NewRemoteError("EMPTY_NAME", "name is required")
		}
		return "hello " + g.Name, nil
	})

	client, _ := connectClient(t, url)
	waitPeers(t, srv, 1)

	invoke := core.DefineInvoke(client, helloBundle, core.WithInvokeTimeout(2*time.Second))
	got, err := invoke(context.Background(), greeting{Name: "ada"})
	if err != nil {
		t.Fatalf("invoke() error = %v", err)
	}
	if got != "hello ada" {
		t.Errorf("invoke() = %q, want %q", got, "hello ada")
	}

	_, err = invoke(context.Background(), greeting{})
	var remote *core.RemoteError
	if !errors.As(err, &remote) || remote.Code != "EMPTY_NAME" {
		t.Errorf("invoke() error = %v, want remote EMPTY_NAME", err)
	}
}

func TestStreamOverWebSocket(t *testing.T) {
	server, srv, url := startServer(t)
	core.DefineStreamInvokeHandler(server, countBundle, core.ToStreamHandler(func(e *core.StreamEmitter[int, int]) error {
		for i := 1; i <= e.Payload; i++ {
			e.Emit(i)
		}
		return nil
	}))

	client, _ := connectClient(t, url)
	waitPeers(t, srv, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := core.DefineStreamInvoke(client, countBundle)(ctx, 5)
	if err != nil {
		t.Fatalf("stream invoke error = %v", err)
	}
	got, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, got); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_PeerIDsAreDistinct(t *testing.T) {
	_, srv, url := startServer(t)
	connectClient(t, url)
	connectClient(t, url)
	waitPeers(t, srv, 2)

	if ids := srv.Peers(); ids[0] == ids[1] {
		t.Errorf("Peers() = %v, want distinct ids", ids)
	}
}
