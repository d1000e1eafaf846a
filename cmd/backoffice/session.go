package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/backoffice/internal/backend"
	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/alexjbarnes/backoffice/internal/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// whoami is the YAML shape printed by the whoami command.
type whoami struct {
	ID         string    `yaml:"id"`
	Email      string    `yaml:"email,omitempty"`
	Name       string    `yaml:"name,omitempty"`
	Avatar     string    `yaml:"avatar,omitempty"`
	NewUser    bool      `yaml:"new_user,omitempty"`
	LoggedInAt time.Time `yaml:"logged_in_at,omitempty"`
	Verified   bool      `yaml:"verified_with_backend,omitempty"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := state.LoadAt(a.cfg.SessionPath())
			if err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			defer st.Close()

			sess, err := st.Session()
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}

			if sess == nil {
				return apperrors.ErrNotLoggedIn
			}

			out := whoami{
				ID:         sess.User.ID.String(),
				Email:      sess.User.Email,
				Name:       sess.User.Name,
				Avatar:     sess.User.Avatar,
				NewUser:    sess.IsNewUser,
				LoggedInAt: sess.LoggedInAt,
			}

			if remote {
				api := backend.NewClient(a.cfg.BackendURL, nil, a.logger)

				user, err := api.Me(cmd.Context(), sess.Token)
				if err != nil {
					return fmt.Errorf("fetching profile: %w", err)
				}

				out.ID = user.ID.String()
				out.Email = user.Email
				out.Name = user.Name
				out.Avatar = user.Avatar
				out.Verified = true
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()

			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "fetch the profile from the backend")

	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := state.LoadAt(a.cfg.SessionPath())
			if err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			defer st.Close()

			token := st.Token()
			if token == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}

			api := backend.NewClient(a.cfg.BackendURL, nil, a.logger)
			if err := api.Logout(cmd.Context(), token); err != nil {
				a.logger.Warn("backend logout failed", slog.String("error", err.Error()))
			}

			if err := st.ClearSession(); err != nil {
				return fmt.Errorf("clearing session: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")

			return nil
		},
	}
}
