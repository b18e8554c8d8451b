package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiredispatch/internal/config"
	"github.com/vovakirdan/wiredispatch/internal/core"
	"github.com/vovakirdan/wiredispatch/internal/metrics"
	transporthttp "github.com/vovakirdan/wiredispatch/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := core.NewHub(core.WithLogger(logger), core.WithMetrics(m))
	for _, name := range cfg.Channels {
		if _, err := hub.CreateChannel(name); err != nil {
			return nil, fmt.Errorf("declare channel %q: %w", name, err)
		}
		logger.Info().Str("channel", name).Msg("channel declared")
	}

	server := transporthttp.NewServer(hub, cfg, reg, m, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}, nil
}

// Hub exposes the dispatch engine so embedding code can register channel
// handlers before Run.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the HTTP server and the hub and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server and websocket connections")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()

	// Server shutdown has closed and unregistered every socket, so no new
	// frames arrive; deliver what is still queued, then stop.
	stopHub()
	select {
	case <-hubDone:
		a.log.Info().Msg("hub drained")
	case <-time.After(a.shutdownTimeout):
		a.log.Warn().Msg("hub drain timed out")
	}

	return err
}
