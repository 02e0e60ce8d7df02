package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
	"github.com/Broccode/acci-eaf-sub010/internal/codec"
)

type callerFlags struct {
	tenant      string
	actor       string
	correlation string
}

func (f *callerFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.tenant, "tenant", "", "tenant id")
	cmd.PersistentFlags().StringVar(&f.actor, "actor", "", "acting user id")
	cmd.PersistentFlags().StringVar(&f.correlation, "correlation-id", "", "correlation id for the emitted events")
	_ = cmd.MarkPersistentFlagRequired("tenant")
	_ = cmd.MarkPersistentFlagRequired("actor")
}

func (f *callerFlags) caller() ticketing.Caller {
	return ticketing.Caller{TenantID: f.tenant, ActorID: f.actor, CorrelationID: f.correlation}
}

func newTicketCmd(deps depsFunc) *cobra.Command {
	var cf callerFlags

	// run opens the app, runs one command through the ticket service and
	// prints the resulting ticket.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, svc *ticketing.Service) (*ticketing.Ticket, error)) error {
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
		t, err := fn(ctx, ticketing.NewService(log, env.Repository()))
		if err != nil {
			return err
		}
		return codec.JSONLines{}.Encode(cmd.OutOrStdout(), ticketState{TenantID: cf.tenant, Version: t.GetVersion(), Ticket: t})
	}

	root := &cobra.Command{
		Use:   "ticket",
		Short: "Run ticket commands",
	}
	cf.bind(root)

	var create ticketing.CreateTicket
	createCmd := &cobra.Command{
		Use:   "create ID",
		Short: "Open a new ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			create.TicketID = args[0]
			return run(cmd, func(ctx context.Context, svc *ticketing.Service) (*ticketing.Ticket, error) {
				return svc.Create(ctx, cf.caller(), create)
			})
		},
	}
	createCmd.Flags().StringVar(&create.Title, "title", "", "ticket title")
	createCmd.Flags().StringVar(&create.Description, "description", "", "ticket description")
	createCmd.Flags().StringVar(&create.Priority, "priority", "", "LOW, MEDIUM, HIGH or CRITICAL")

	var assign ticketing.AssignTicket
	assignCmd := &cobra.Command{
		Use:   "assign ID ASSIGNEE",
		Short: "Assign a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assign.TicketID, assign.AssigneeID = args[0], args[1]
			return run(cmd, func(ctx context.Context, svc *ticketing.Service) (*ticketing.Ticket, error) {
				return svc.Assign(ctx, cf.caller(), assign)
			})
		},
	}

	var status ticketing.ChangeTicketStatus
	statusCmd := &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Move a ticket to OPEN, IN_PROGRESS, RESOLVED or CLOSED",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status.TicketID, status.Status = args[0], args[1]
			return run(cmd, func(ctx context.Context, svc *ticketing.Service) (*ticketing.Ticket, error) {
				return svc.ChangeStatus(ctx, cf.caller(), status)
			})
		},
	}

	var comment ticketing.CommentTicket
	commentCmd := &cobra.Command{
		Use:   "comment ID BODY",
		Short: "Comment on a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comment.TicketID, comment.Body = args[0], args[1]
			return run(cmd, func(ctx context.Context, svc *ticketing.Service) (*ticketing.Ticket, error) {
				return svc.Comment(ctx, cf.caller(), comment)
			})
		},
	}

	root.AddCommand(createCmd, assignCmd, statusCmd, commentCmd)
	return root
}
