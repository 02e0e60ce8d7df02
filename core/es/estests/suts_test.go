package estests

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Broccode/acci-eaf-sub010/adapters/nats"
	"github.com/Broccode/acci-eaf-sub010/adapters/sqlstore"
	"github.com/Broccode/acci-eaf-sub010/core/cache"
	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/core/es/estests/domain"
	"github.com/Broccode/acci-eaf-sub010/ports/kv"
)

type sut struct {
	name  string
	store func(t *testing.T) (es.EventStore, es.Snapshotter)
}

var suts = []sut{
	{
		name: "memory",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			return es.NewInMemoryStore(), es.NewInMemorySnapshotter()
		},
	},
	{
		name: "memory+kv snapshots",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			return es.NewInMemoryStore(), es.NewKeyValueSnapshotter(kv.NewMemStore())
		},
	},
	{
		name: "memory+cached snapshots",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			return es.NewInMemoryStore(), es.NewCachedSnapshotter(es.NewInMemorySnapshotter(), cache.NewLRU[*es.Snapshot](cache.LRUOpts{Size: 4}))
		},
	},
	{
		name: "sqlite",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			db := sqlstore.NewTestSQLite(t)
			return sqlstore.NewEventStore(db), sqlstore.NewSnapshotter(db)
		},
	},
	{
		name: "postgres",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			db := sqlstore.NewTestPostgres(t)
			return sqlstore.NewEventStore(db), sqlstore.NewSnapshotter(db)
		},
	},
	{
		name: "postgres+nats snapshots",
		store: func(t *testing.T) (es.EventStore, es.Snapshotter) {
			db := sqlstore.NewTestPostgres(t)
			snaps, err := nats.NewSnapshotter(nats.KvConfig{Connect: nats.NewTestContainer(t)})
			require.NoError(t, err)
			t.Cleanup(func() { _ = snaps.Close() })
			return sqlstore.NewEventStore(db), snaps
		},
	},
}

type Tef func(opts ...es.EnvOption) *es.TestingEnv
type TestFunc func(t *testing.T, tef Tef)

// eachStore runs testFunc once per store implementation.
func eachStore(testFunc TestFunc) func(t *testing.T) {
	return func(t *testing.T) {
		for _, s := range suts {
			t.Run(s.name, func(t *testing.T) {
				store, snapshotter := s.store(t)
				testFunc(t, func(opts ...es.EnvOption) *es.TestingEnv {
					return es.StartTestEnv(
						t,
						es.WithLog(slog.Default()),
						es.WithStore(store),
						es.WithSnapshotter(snapshotter),
						es.WithAggregates(new(domain.Counter)),
						es.WithEnvOpts(opts...),
					)
				})
			})
		}
	}
}
