package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Broccode/acci-eaf-sub010/adapters/nats"
	promadapter "github.com/Broccode/acci-eaf-sub010/adapters/prometheus"
	"github.com/Broccode/acci-eaf-sub010/adapters/sqlstore"
	"github.com/Broccode/acci-eaf-sub010/core/cache"
	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
	"github.com/Broccode/acci-eaf-sub010/internal/config"
)

// app holds the resources shared by the subcommands.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sqlstore.DB
	store   *sqlstore.EventStore
	reg     *prom.Registry
	metrics *promadapter.ESMetrics
	closers []func() error
}

func openApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	dbCfg := cfg.Database
	dbCfg.Log = log
	db, err := sqlstore.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := promadapter.NewESMetrics(reg)

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   sqlstore.NewEventStore(db, sqlstore.WithStoreMetrics(metrics)),
		reg:     reg,
		metrics: metrics,
		closers: []func() error{db.Close},
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) connector() nats.Connector {
	return nats.ReuseConnection(nats.Connect(nats.ConnectConfig{
		URL:  a.cfg.NATS.URL,
		Name: "eafes",
		Log:  a.log,
	}))
}

func (a *app) snapshotter() (es.Snapshotter, error) {
	var snaps es.Snapshotter
	switch a.cfg.Snapshots.Backend {
	case "sql":
		snaps = sqlstore.NewSnapshotter(a.db)
	case "nats":
		kvSnaps, err := nats.NewSnapshotter(nats.KvConfig{Connect: a.connector(), Bucket: a.cfg.Snapshots.Bucket})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kvSnaps.Close)
		snaps = kvSnaps
	default:
		return nil, nil
	}
	if n := a.cfg.Snapshots.CacheSize; n > 0 {
		snaps = es.NewCachedSnapshotter(snaps, cache.NewLRU[*es.Snapshot](cache.LRUOpts{Size: n, TTL: a.cfg.Snapshots.CacheTTL}))
	}
	return snaps, nil
}

func (a *app) publisher() (es.EventPublisher, error) {
	if !a.cfg.NATS.Enabled() {
		return es.NopPublisher(), nil
	}
	p, err := nats.NewPublisher(nats.PublisherConfig{
		Connect: a.connector(),
		Log:     a.log,
		Stream:  a.cfg.NATS.Stream,
		Breaker: a.cfg.NATS.Breaker,
	})
	if err != nil {
		return nil, fmt.Errorf("nats publisher: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// env builds an Env for the ticket aggregate with the configured snapshots,
// publisher and metrics plus the given extra options.
func (a *app) env(opts ...es.EnvOption) (*es.Env, error) {
	snaps, err := a.snapshotter()
	if err != nil {
		return nil, err
	}
	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}

	base := []es.EnvOption{
		es.WithLog(a.log),
		es.WithStore(a.store),
		es.WithMetrics(a.metrics),
		es.WithPublisher(pub),
		es.WithAggregates(new(ticketing.Ticket)),
		es.WithRepoOpts(es.WithSnapshotEvery(a.cfg.Snapshots.Every)),
	}
	if snaps != nil {
		base = append(base, es.WithSnapshotter(snaps))
	}
	return es.NewEnv(append(base, opts...)...)
}
