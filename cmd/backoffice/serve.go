package main

import (
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/backoffice/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server: POST /login starts a sign-in, /flow/events streams progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := state.LoadAt(a.cfg.SessionPath())
			if err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			defer st.Close()

			ln, err := net.Listen("tcp", a.cfg.CallbackListenAddr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", a.cfg.CallbackListenAddr, err)
			}

			cp := a.newControlPlane(st, a.opener(noBrowser, cmd.ErrOrStderr()))
			defer cp.coord.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("backoffice control server starting",
				slog.String("version", Version),
				slog.String("listen", ln.Addr().String()),
				slog.String("origin", a.cfg.AppOrigin),
				slog.String("callback", a.cfg.CallbackURL()),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return serveHTTP(gctx, ln, cp.handler, a.logger)
			})

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print sign-in URLs instead of opening a browser")

	return cmd
}
