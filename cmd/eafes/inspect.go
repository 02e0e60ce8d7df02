package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
	"github.com/Broccode/acci-eaf-sub010/internal/codec"
)

type inspectFlags struct {
	tenant  string
	aggType string
	aggID   string
	from    uint64
	since   uint64
	limit   int
	output  string
}

func newInspectCmd(deps depsFunc) *cobra.Command {
	var f inspectFlags

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the events of one stream, or of the global log with --since",
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc, err := codec.ByName(f.output)
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

			var events []es.Envelope
			switch {
			case f.aggID != "":
				events, err = a.store.Load(ctx, f.tenant, f.aggType, f.aggID, es.WithStartAtVersion(es.Version(f.from)))
			case cmd.Flags().Changed("since"):
				events, err = a.store.LoadAllSince(ctx, f.since, f.limit)
			default:
				return errors.New("either --id or --since is required")
			}
			if err != nil {
				return err
			}
			for _, env := range events {
				if err := enc.Encode(cmd.OutOrStdout(), env); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&f.aggType, "type", ticketing.AggType, "aggregate type")
	cmd.Flags().StringVar(&f.aggID, "id", "", "aggregate id")
	cmd.Flags().Uint64Var(&f.from, "from-version", 0, "first stream version to print")
	cmd.Flags().Uint64Var(&f.since, "since", 0, "print the global log after this sequence number")
	cmd.Flags().IntVar(&f.limit, "limit", es.DefaultBatchSize, "max events with --since")
	cmd.Flags().StringVarP(&f.output, "output", "o", "jsonl", "jsonl or json")
	return cmd
}
