package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/eventa/internal/contracts"
	"github.com/fluxorio/eventa/pkg/adapters/natsbridge"
	"github.com/fluxorio/eventa/pkg/adapters/ws"
	"github.com/fluxorio/eventa/pkg/config"
	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
	eventalog "github.com/fluxorio/eventa/pkg/log"
	"github.com/fluxorio/eventa/pkg/observability/otel"
	"github.com/fluxorio/eventa/pkg/observability/prometheus"
	"github.com/fluxorio/eventa/pkg/store"
)

const statsInterval = 5 * time.Second

// listeners reports the bound addresses once the server is accepting.
// metrics is nil when metrics are disabled.
type listeners struct {
	ws      net.Addr
	metrics net.Addr
}

// status is the body of the metrics server's /status endpoint
type status struct {
	Peers    int                       `json:"peers"`
	Executor concurrency.ExecutorStats `json:"executor"`
	Store    sql.DBStats               `json:"store"`
}

// run serves until ctx ends, then shuts everything down
func run(ctx context.Context, cfg config.Config, ready func(listeners)) error {
	logger := eventalog.WithComponent("server")

	tracing, err := otel.NewProvider(ctx, otel.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "eventa-server",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	errc := make(chan error, 2)
	var bound listeners

	var metrics *prometheus.Metrics
	var metricsSrv *prometheus.Server
	var metricsLn net.Listener
	var observer core.Observer
	if cfg.Metrics.Enabled {
		reg := promclient.NewRegistry()
		metrics = prometheus.NewMetrics(promclient.WrapRegistererWith(promclient.Labels{"service": "eventa"}, reg))
		observer = metrics

		metricsLn, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer metricsLn.Close()
		bound.metrics = metricsLn.Addr()
		metricsSrv = prometheus.NewServer(reg)
	}

	pool, err := store.NewPool(ctx, store.PoolConfig{
		DriverName:      cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		Metrics:         metrics,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer pool.Close()

	chats := store.NewChatStore(pool)
	if err := chats.Migrate(ctx); err != nil {
		return err
	}

	coreLogger := core.NewLogger(logger)
	wsServer := ws.NewServer(ws.ServerOptions{
		Path:         cfg.Server.Path,
		ReadLimit:    cfg.Server.ReadLimit,
		WriteTimeout: cfg.Server.WriteTimeout,
		OutboxSize:   cfg.Server.OutboxSize,
		Logger:       coreLogger,
		Metrics:      metrics,
	})
	adapters := []core.Adapter{wsServer}
	if cfg.NATS.Enabled {
		adapters = append(adapters, natsbridge.New(natsbridge.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Name:    cfg.NATS.Name,
			Logger:  coreLogger,
			Metrics: metrics,
		}))
	}

	bus, err := core.NewEventContextWithOptions(ctx, core.EventContextOptions{
		Adapter:  core.RelayAdapters(adapters...),
		Logger:   coreLogger,
		Observer: observer,
		ExecutorConfig: concurrency.ExecutorConfig{
			MaxTasks: cfg.Executor.MaxTasks,
		},
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	contracts.RegisterChatHandlers(bus, chats)
	core.On(bus, ws.ConnectedEvent, func(p ws.ConnectedPayload) error {
		logger.Info().Str(eventalog.FieldPeerID, p.ID).Msg("peer connected")
		return nil
	})
	core.On(bus, ws.DisconnectedEvent, func(p ws.ConnectedPayload) error {
		logger.Info().Str(eventalog.FieldPeerID, p.ID).Msg("peer disconnected")
		return nil
	})
	core.On(bus, ws.ErrorEvent, func(p ws.ErrorPayload) error {
		logger.Warn().Str(eventalog.FieldPeerID, p.ID).Str("error", p.Error).Msg("peer error")
		return nil
	})

	if metricsSrv != nil {
		metricsSrv.HandleStatus(func() any {
			return status{
				Peers:    len(wsServer.Peers()),
				Executor: bus.ExecutorStats(),
				Store:    pool.Stats(),
			}
		})
		go func() { errc <- metricsSrv.Serve(metricsLn) }()
		defer metricsSrv.Shutdown(context.Background())
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, wsServer)
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("websocket listener: %w", err)
	}
	bound.ws = ln.Addr()
	go func() { errc <- httpSrv.Serve(ln) }()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", cfg.Server.Path).
		Bool("nats", cfg.NATS.Enabled).
		Msg("eventa server listening")
	if ready != nil {
		ready(bound)
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			// peers are hijacked connections, closed by bus.Close
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			return err
		case <-ticker.C:
			metrics.UpdateExecutor(bus.ExecutorStats())
			pool.ReportStats()
		}
	}
}
