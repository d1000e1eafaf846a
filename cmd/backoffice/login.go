package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/backoffice/internal/flow"
	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/alexjbarnes/backoffice/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLoginCmd(a *app) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runLogin(cmd, noBrowser)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the sign-in URL instead of opening a browser")

	return cmd
}

func (a *app) runLogin(cmd *cobra.Command, noBrowser bool) error {
	st, err := state.LoadAt(a.cfg.SessionPath())
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer st.Close()

	// Bind before opening the popup so a busy port fails fast.
	ln, err := net.Listen("tcp", a.cfg.CallbackListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.CallbackListenAddr, err)
	}

	cp := a.newControlPlane(st, a.opener(noBrowser, cmd.ErrOrStderr()))
	defer cp.coord.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		return serveHTTP(srvCtx, ln, cp.handler, a.logger)
	})

	var (
		res      *models.LoginResult
		loginErr error
	)

	loginDone := make(chan struct{})
	go interruptOnSecondSignal(gctx, loginDone, cp.coord, cmd.ErrOrStderr())

	g.Go(func() error {
		defer stopServer()
		defer close(loginDone)

		res, loginErr = cp.coord.Login(gctx, cp.api, func(f *flow.Flow) {
			a.logger.Debug("waiting for callback", slog.String("flow", f.ID()))
			fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for sign-in to complete in the browser. Press Ctrl-C to cancel.")
		})

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	switch {
	case errors.Is(loginErr, flow.ErrCancelled):
		fmt.Fprintln(cmd.OutOrStdout(), "login cancelled")
		return nil
	case loginErr != nil:
		return fmt.Errorf("login failed: %w", loginErr)
	}

	printSignedIn(cmd, res)

	return nil
}

var notifyInterrupt = func(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
}

// interruptOnSecondSignal aborts a code exchange still in flight when
// another interrupt arrives after ctx has ended.
func interruptOnSecondSignal(ctx context.Context, done <-chan struct{}, coord *flow.Coordinator, out io.Writer) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	sig := make(chan os.Signal, 1)
	notifyInterrupt(sig)
	defer signal.Stop(sig)

	if f := coord.Active(); f != nil && f.State() == flow.Processing {
		fmt.Fprintln(out, "Finishing sign-in. Press Ctrl-C again to abort.")
	}

	select {
	case <-done:
	case <-sig:
		coord.Close()
	}
}

func printSignedIn(cmd *cobra.Command, res *models.LoginResult) {
	who := res.User.Email
	if who == "" {
		who = "user " + res.User.ID.String()
	}

	if res.IsNewUser {
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (new account)\n", who)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", who)
}
