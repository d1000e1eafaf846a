package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alexjbarnes/backoffice/internal/config"
	"github.com/alexjbarnes/backoffice/internal/logging"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries what every command needs once the config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "backoffice",
		Short:         "Sign in to the back-office admin panel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfg.ValidateClient(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			a.cfg = cfg
			a.logger = logging.NewLogger(cfg.Environment, cfg.LogFile)

			return nil
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newWhoamiCmd(a),
		newLogoutCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// No config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
