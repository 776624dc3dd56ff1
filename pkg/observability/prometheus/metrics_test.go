package prometheus_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

func TestMetrics_Observer(t *testing.T) {
	m := prometheus.NewMetrics(promclient.NewRegistry())

	c, err := core.NewEventContextWithOptions(context.Background(), core.EventContextOptions{
		Logger:   core.NewNopLogger(),
		Observer: m,
	})
	if err != nil {
		t.Fatalf("NewEventContextWithOptions() error = %v", err)
	}
	defer c.Close()

	tag := core.DefineTag[int]("metrics:test")
	core.On(c, tag, func(int) error { return nil })
	core.On(c, tag, func(int) error { panic("boom") })
	core.Emit(c, tag, 1)
	c.Deliver(tag.Name(), 2)

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("metrics:test", "local")); got != 1 {
		t.Errorf("local events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("metrics:test", "inbound")); got != 1 {
		t.Errorf("inbound events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ListenerFailuresTotal.WithLabelValues("metrics:test")); got != 2 {
		t.Errorf("listener failures = %v, want 2", got)
	}

	b := core.DefineInvokeBundle[int, int]("metrics:double")
	core.DefineInvokeHandler(c, b, func(ctx context.Context, n int) (int, error) { return n * 2, nil })
	if _, err := core.DefineInvoke(c, b)(context.Background(), 2); err != nil {
		t.Fatalf("invoke() error = %v", err)
	}
	if got := testutil.ToFloat64(m.InvokesTotal.WithLabelValues("metrics:double", "invoke", "ok")); got != 1 {
		t.Errorf("ok invokes = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *prometheus.Metrics
	m.EventEmitted("t", 1, false)
	m.ListenerFailed("t", nil)
	m.InvokeCompleted("b", core.KindInvoke, core.OutcomeOK, time.Millisecond)
	m.UpdateExecutor(concurrency.ExecutorStats{})
	m.PeerConnected("ws")
	m.FrameOut("ws")
	m.RecordDatabaseQuery("select", time.Millisecond)
}

func TestMetrics_Transport(t *testing.T) {
	m := prometheus.NewMetrics(promclient.NewRegistry())

	m.PeerConnected("ws")
	m.PeerConnected("ws")
	m.PeerDisconnected("ws")
	m.FrameIn("ws")
	m.FrameOut("ws")
	m.FrameOut("ws")
	m.FrameDropped("ws")
	m.DecodeFailed("ws")
	m.UpdateExecutor(concurrency.ExecutorStats{RunningTasks: 3, RejectedTasks: 1})

	checks := []struct {
		name string
		c    promclient.Collector
		want float64
	}{
		{"peers", m.PeersConnected.WithLabelValues("ws"), 1},
		{"frames in", m.FramesTotal.WithLabelValues("ws", "in"), 1},
		{"frames out", m.FramesTotal.WithLabelValues("ws", "out"), 2},
		{"dropped", m.FramesDroppedTotal.WithLabelValues("ws"), 1},
		{"decode errors", m.DecodeErrorsTotal.WithLabelValues("ws"), 1},
		{"running", m.ExecutorRunningTasks, 3},
		{"rejected", m.ExecutorRejectedTasks, 1},
	}
	for _, tt := range checks {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := promclient.NewRegistry()
	m := prometheus.NewMetrics(promclient.WrapRegistererWith(promclient.Labels{"service": "test"}, registry))
	m.FrameIn("ws")

	srv := prometheus.NewServer(registry)
	ln := fasthttputil.NewInmemoryListener()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	httpClient := &http.Client{
		Transport: &http.Transport{
			Dial: func(network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Get("http://test/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `eventa_transport_frames_total{direction="in",service="test",transport="ws"} 1`) {
		t.Errorf("GET /metrics body missing frame counter:\n%s", body)
	}

	resp, err = httpClient.Get("http://test/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = httpClient.Get("http://test/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /status without a handler: status = %d, want 404", resp.StatusCode)
	}

	httpClient.CloseIdleConnections()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	<-done
}

func TestServer_StatusEndpoint(t *testing.T) {
	srv := prometheus.NewServer(promclient.NewRegistry())
	srv.HandleStatus(func() any {
		return map[string]int{"peers": 3}
	})
	ln := fasthttputil.NewInmemoryListener()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	httpClient := &http.Client{
		Transport: &http.Transport{
			Dial: func(network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}

	resp, err := httpClient.Get("http://test/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := strings.TrimSpace(string(body)); got != `{"peers":3}` {
		t.Errorf("GET /status body = %s, want {\"peers\":3}", got)
	}

	httpClient.CloseIdleConnections()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	<-done
}
