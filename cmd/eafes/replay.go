package main

import (
	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
	"github.com/Broccode/acci-eaf-sub010/internal/codec"
)

type ticketState struct {
	TenantID string            `json:"tenant_id"`
	Version  es.Version        `json:"version"`
	Ticket   *ticketing.Ticket `json:"ticket"`
}

func newReplayCmd(deps depsFunc) *cobra.Command {
	var (
		tenant   string
		id       string
		snapshot bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a ticket from its stream and print its state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc, err := codec.ByName(output)
			if err != nil {
				return err
			}
			cfg, log := deps()
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			env, err := a.env()
			if err != nil {
				return err
			}
			repo := es.NewTypedRepositoryFrom[*ticketing.Ticket](log, env.Repository())
			t, err := repo.GetByID(ctx, tenant, id, es.WithSnapshot(snapshot))
			if err != nil {
				return err
			}
			return enc.Encode(cmd.OutOrStdout(), ticketState{TenantID: tenant, Version: t.GetVersion(), Ticket: t})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&id, "id", "", "ticket id")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "start from the latest snapshot")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "jsonl or json")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
