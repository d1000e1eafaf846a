package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/backoffice/internal/authapi"
	"github.com/alexjbarnes/backoffice/internal/config"
	"github.com/alexjbarnes/backoffice/internal/logging"
	"github.com/alexjbarnes/backoffice/internal/state"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogFile)
	logger.Info("backoffice-api starting",
		slog.String("version", Version),
		slog.String("listen", cfg.APIListenAddr),
		slog.String("redirect_url", cfg.OAuthRedirectURL),
	)

	st, err := state.LoadAt(cfg.APIStatePath())
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer st.Close()

	api := authapi.NewServer(authapi.Config{
		OAuth:       authapi.NewOAuthConfig(cfg),
		UserInfoURL: cfg.GoogleUserInfoURL,
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenTTL:    cfg.TokenTTL,
	}, st, logger)
	defer api.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      api.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server error: %w", err)
		}

		return nil
	})

	// Shutdown when context is cancelled.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
