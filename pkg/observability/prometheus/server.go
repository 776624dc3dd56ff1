package prometheus

import (
	"context"
	"encoding/json"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server exposes /metrics, /healthz and optionally /status over fasthttp
type Server struct {
	srv    *fasthttp.Server
	status func() any
}

// NewServer creates a metrics server reading from gatherer
// (DefaultRegistry when nil)
func NewServer(gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s := &Server{}
	s.srv = &fasthttp.Server{
		Name: "eventa-metrics",
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/healthz":
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBodyString("ok")
			case "/status":
				s.serveStatus(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	return s
}

// HandleStatus makes /status answer with fn's result encoded as JSON.
// It must be called before Serve.
func (s *Server) HandleStatus(fn func() any) {
	s.status = fn
}

func (s *Server) serveStatus(ctx *fasthttp.RequestCtx) {
	if s.status == nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	body, err := json.Marshal(s.status())
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// ListenAndServe blocks serving on addr until Shutdown
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Serve blocks serving on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops the server, bounded by ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
