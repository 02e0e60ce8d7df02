package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
)

func newMigrateCmd(deps depsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event store and read model tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log := deps()
			a, err := openApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.db.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := ticketing.MigrateViews(cmd.Context(), a.db); err != nil {
				return err
			}
			log.Info("schema migrated", slog.String("dialect", string(a.db.Dialect())))
			return nil
		},
	}
}
