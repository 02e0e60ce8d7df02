// Package integration runs the ticketing service against Postgres and NATS
// containers. Set EAFES_CONTAINER_TESTS=1 to run it.
package integration

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Broccode/acci-eaf-sub010/adapters/nats"
	"github.com/Broccode/acci-eaf-sub010/adapters/sqlstore"
	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/examples/ticketing"
)

var carol = ticketing.Caller{TenantID: "acme", ActorID: "carol", CorrelationID: "req-9"}

type fixture struct {
	db    *sqlstore.DB
	store *sqlstore.EventStore
	svc   *ticketing.Service
	env   *es.Env
	conn  nats.Connector
}

func newFixture(t *testing.T) *fixture {
	db := sqlstore.NewTestPostgres(t)
	require.NoError(t, ticketing.MigrateViews(t.Context(), db))
	connect := nats.ReuseConnection(nats.NewTestContainer(t))

	pub, err := nats.NewPublisher(nats.PublisherConfig{Connect: connect})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	snaps, err := nats.NewSnapshotter(nats.KvConfig{Connect: connect})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snaps.Close() })

	store := sqlstore.NewEventStore(db)
	env, err := es.NewEnv(
		es.WithStore(store),
		es.WithPublisher(pub),
		es.WithSnapshotter(snaps),
		es.WithAggregates(new(ticketing.Ticket)),
		es.WithRepoOpts(es.WithSnapshotEvery(3)),
	)
	require.NoError(t, err)

	return &fixture{
		db:    db,
		store: store,
		svc:   ticketing.NewService(slog.Default(), env.Repository()),
		env:   env,
		conn:  connect,
	}
}

func TestIntegration_BusFeedsReadModel(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	view, err := es.NewProjector[*sqlstore.Tx](ticketing.TicketViewProjection{}, sqlstore.NewProjectionStore(f.db), f.env.Serializer())
	require.NoError(t, err)

	cons, err := nats.NewConsumer(ctx, nats.ConsumerConfig{
		Connect:       f.conn,
		Durable:       "ticket-view",
		TenantID:      "acme",
		AggregateType: ticketing.AggType,
		NakDelay:      20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cons.Close() })
	require.NoError(t, cons.Start(ctx, view))

	_, err = f.svc.Create(ctx, carol, ticketing.CreateTicket{TicketID: "t-1", Title: "VPN down", Priority: "CRITICAL"})
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(ctx, carol, ticketing.ChangeTicketStatus{TicketID: "t-1", Status: "IN_PROGRESS"})
	require.NoError(t, err)
	_, err = f.svc.Comment(ctx, carol, ticketing.CommentTicket{TicketID: "t-1", Body: "rebooting"})
	require.NoError(t, err)

	// other tenants stay out of this consumer
	_, err = f.svc.Create(ctx, ticketing.Caller{TenantID: "globex", ActorID: "dan"}, ticketing.CreateTicket{TicketID: "t-1", Title: "other"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := ticketing.GetTicketView(ctx, f.db, "acme", "t-1")
		return err == nil && v.LastEventVersion == 3
	}, 10*time.Second, 50*time.Millisecond)

	v, err := ticketing.GetTicketView(ctx, f.db, "acme", "t-1")
	require.NoError(t, err)
	require.Equal(t, ticketing.StatusInProgress, v.Status)
	require.Equal(t, 1, v.CommentCount)

	_, err = ticketing.GetTicketView(ctx, f.db, "globex", "t-1")
	require.ErrorIs(t, err, ticketing.ErrViewNotFound)
}

func TestIntegration_SnapshotInKV(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.Create(ctx, carol, ticketing.CreateTicket{TicketID: "t-2", Title: "Badge reader"})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, carol, ticketing.AssignTicket{TicketID: "t-2", AssigneeID: "erin"})
	require.NoError(t, err)
	_, err = f.svc.Comment(ctx, carol, ticketing.CommentTicket{TicketID: "t-2", Body: "ordered a new one"})
	require.NoError(t, err)

	snap, err := f.env.Snapshotter().LoadSnapshot(ctx, "acme", ticketing.AggType, "t-2")
	require.NoError(t, err)
	require.Equal(t, es.Version(3), snap.ObjVersion)

	// one more event after the snapshot is replayed on top of it
	_, err = f.svc.ChangeStatus(ctx, carol, ticketing.ChangeTicketStatus{TicketID: "t-2", Status: "RESOLVED"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "acme", "t-2")
	require.NoError(t, err)
	require.Equal(t, es.Version(4), got.GetVersion())
	require.Equal(t, "erin", got.AssigneeID)
	require.Equal(t, ticketing.StatusResolved, got.Status)
	require.Len(t, got.Comments, 1)
}

func TestIntegration_ConcurrentWritersOnPostgres(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.Create(ctx, carol, ticketing.CreateTicket{TicketID: "t-3", Title: "Busy ticket"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			other := ticketing.NewService(slog.Default(), f.env.Repository())
			_, err := other.Comment(ctx, carol, ticketing.CommentTicket{TicketID: "t-3", Body: "+1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := f.store.CurrentVersion(ctx, "acme", ticketing.AggType, "t-3")
	require.NoError(t, err)
	require.Equal(t, es.Version(9), v)

	events, err := f.store.Load(ctx, "acme", ticketing.AggType, "t-3")
	require.NoError(t, err)
	for i, e := range events {
		require.Equal(t, es.Version(i+1), e.Version)
	}
}
