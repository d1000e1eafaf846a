package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alexjbarnes/backoffice/internal/backend"
	"github.com/alexjbarnes/backoffice/internal/bridge"
	"github.com/alexjbarnes/backoffice/internal/flow"
	"github.com/alexjbarnes/backoffice/internal/metrics"
	"github.com/alexjbarnes/backoffice/internal/popup"
	"github.com/alexjbarnes/backoffice/internal/relay"
	"github.com/alexjbarnes/backoffice/internal/server"
	"github.com/alexjbarnes/backoffice/internal/state"
)

// controlPlane is the loopback side of a sign-in: the application
// origin that serves the relay page and owns the flow coordinator.
type controlPlane struct {
	coord   *flow.Coordinator
	api     *backend.Client
	handler http.Handler
}

func (a *app) newControlPlane(st *state.State, opener popup.Opener) *controlPlane {
	cfg := a.cfg
	rec := metrics.NewRecorder()
	api := backend.NewClient(cfg.BackendURL, nil, a.logger)
	bus := bridge.NewBus(cfg.AppOrigin, a.logger)

	coord := flow.NewCoordinator(flow.Config{
		Origin:       cfg.AppOrigin,
		PollInterval: cfg.PopupPollInterval,
		Timeout:      cfg.FlowTimeout,
		Opener:       opener,
		Bus:          bus,
		Exchanger:    api,
		Session:      st,
		Observer:     rec,
	}, a.logger)

	relayHandler := relay.NewHandler(relay.Config{
		Origin:     cfg.AppOrigin,
		Opener:     server.RelayOpener(bus, coord),
		CloseDelay: cfg.RelayCloseDelay,
		Metrics:    rec,
	}, a.logger)

	mux := server.NewMux(server.MuxConfig{
		Origin:       cfg.AppOrigin,
		CallbackPath: cfg.CallbackPath,
		Relay:        relayHandler,
		Coordinator:  coord,
		Backend:      api,
		State:        st,
		Events:       server.NewHub(server.Snapshot(coord), a.logger),
		Metrics:      rec,
		Logger:       a.logger,
	})

	return &controlPlane{coord: coord, api: api, handler: mux}
}

func (a *app) opener(noBrowser bool, out io.Writer) popup.Opener {
	if noBrowser || !a.cfg.OpenBrowser {
		return &popup.ManualOpener{Out: out}
	}

	return popup.NewBrowserOpener(a.logger)
}

// serveHTTP serves handler on ln until ctx is cancelled.
func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Debug("shutting down control server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server error: %w", err)
	}

	return nil
}
