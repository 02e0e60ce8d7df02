package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Broccode/acci-eaf-sub010/adapters/sqlstore"
	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
)

func newProjectCmd(deps depsFunc) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Tail the event log into the ticket read model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log := deps()
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			reg := es.NewRegistry()
			new(ticketing.Ticket).Register(reg)
			view, err := es.NewProjector[*sqlstore.Tx](
				ticketing.TicketViewProjection{},
				sqlstore.NewProjectionStore(a.db),
				es.NewJSONSerializer(reg),
				es.WithLog(log),
				es.WithMetrics(a.metrics),
			)
			if err != nil {
				return err
			}

			tailerOpts := []es.TailerOption{
				es.WithLog(log),
				es.WithMetrics(a.metrics),
				es.WithCursorStore(sqlstore.NewCursorStore(a.db)),
				es.WithBatchSize(cfg.Projector.BatchSize),
				es.WithPollInterval(cfg.Projector.PollInterval),
				es.WithMiddlewares(es.NewLogMiddleware()),
			}
			if len(cfg.Projector.Tenants) > 0 {
				tailerOpts = append(tailerOpts, es.WithMiddlewares(es.NewTenantFilterMiddleware(cfg.Projector.Tenants...)))
			}
			tailer, err := es.NewTailer(a.store, []es.Subscriber{view}, tailerOpts...)
			if err != nil {
				return err
			}

			if once {
				n, err := tailer.RunOnce(ctx)
				log.Info("catch-up finished", slog.Int("events", n))
				return err
			}

			if cfg.Metrics.Addr != "" {
				go serveMetrics(ctx, log, cfg.Metrics.Addr, a)
			}

			tailer.Start(ctx)
			log.Info("projector running", slog.String("projector", view.Name()))
			<-ctx.Done()
			tailer.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "catch up once and exit")
	return cmd
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, a *app) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", slog.Any("error", err))
	}
}
