// Command eafes operates the ticketing event store: schema migration, the
// projection loop, stream inspection, aggregate replay and ticket commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/internal/config"
)

type rootFlags struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		cfg   config.Config
		log   *slog.Logger
	)

	root := &cobra.Command{
		Use:           "eafes",
		Short:         "Multi-tenant event store for the ticketing domain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(flags.configFile)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				cfg.Log.Level = flags.logLevel
			}
			log = cfg.Log.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(log)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default ./eafes.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")

	deps := func() (config.Config, *slog.Logger) { return cfg, log }
	root.AddCommand(
		newMigrateCmd(deps),
		newProjectCmd(deps),
		newInspectCmd(deps),
		newReplayCmd(deps),
		newTicketCmd(deps),
	)
	return root
}

type depsFunc func() (config.Config, *slog.Logger)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
