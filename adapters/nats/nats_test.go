package nats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/ports/kv"
)

func TestKvStore(t *testing.T) {
	store, err := NewKvStore(KvConfig{Bucket: "fruits", Connect: NewTestContainer(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	type fruit struct {
		Name  string
		Count int
	}

	ctx := t.Context()
	require.NoError(t, kv.Put(ctx, store, "apple", fruit{Name: "apple", Count: 10}, kv.PutOptions{}))
	v, err := kv.Get[fruit](ctx, store, "apple")
	require.NoError(t, err)
	require.Equal(t, fruit{Name: "apple", Count: 10}, v)

	require.NoError(t, store.Delete(ctx, "apple"))
	_, err = store.Get(ctx, "apple")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.ErrorIs(t, store.Put(ctx, "bad key", kv.Entry{}, kv.PutOptions{}), kv.ErrInvalidKey)
	require.ErrorIs(t, store.Put(ctx, "k", kv.Entry{}, kv.PutOptions{TTL: time.Minute}), ErrKeyTTL)
}

func TestCursorStore(t *testing.T) {
	cs, err := NewCursorStore(KvConfig{Connect: NewTestContainer(t)})
	require.NoError(t, err)

	ctx := t.Context()
	_, err = cs.GetCursor(ctx, "ticket-view")
	require.ErrorIs(t, err, es.ErrCheckpointNotFound)

	require.NoError(t, cs.SetCursor(ctx, "ticket-view", 42))
	seq, err := cs.GetCursor(ctx, "ticket-view")
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)
}

func TestSnapshotter(t *testing.T) {
	snaps, err := NewSnapshotter(KvConfig{Connect: NewTestContainer(t)})
	require.NoError(t, err)

	ctx := t.Context()
	_, err = snaps.LoadSnapshot(ctx, "acme", "ticket", "t-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	ss := &es.Snapshot{
		SnapshotID:    "s-1",
		TenantID:      "acme",
		ObjType:       "ticket",
		ObjID:         "t-1",
		ObjVersion:    4,
		StreamSeq:     9,
		SchemaVersion: 1,
		Encoding:      "json",
		Data:          []byte(`{"status":"OPEN"}`),
	}
	require.NoError(t, snaps.SaveSnapshot(ctx, ss))

	loaded, err := snaps.LoadSnapshot(ctx, "acme", "ticket", "t-1")
	require.NoError(t, err)
	require.Equal(t, ss.ObjVersion, loaded.ObjVersion)
	require.Equal(t, ss.Data, loaded.Data)
}

func TestSnapshotter_CloseReleasesConnection(t *testing.T) {
	connect := NewTestContainer(t)
	var closed atomic.Int32
	counting := func() (*natsgo.Conn, closeFunc, error) {
		nc, closeNc, err := connect()
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { closed.Add(1); closeNc() }, nil
	}

	snaps, err := NewSnapshotter(KvConfig{Connect: counting})
	require.NoError(t, err)
	require.Zero(t, closed.Load())

	require.NoError(t, snaps.Close())
	require.EqualValues(t, 1, closed.Load())
}

type collector struct {
	mu     sync.Mutex
	failed bool
	got    []es.Envelope
}

func (c *collector) Handle(msgCtx es.MsgCtx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.failed {
		c.failed = true
		return context.DeadlineExceeded
	}
	c.got = append(c.got, msgCtx.Envelope())
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.got))
	for _, env := range c.got {
		out = append(out, env.ID)
	}
	return out
}

func TestPublishConsume(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	pub, err := NewPublisher(PublisherConfig{Connect: connect})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	ctx := t.Context()
	for _, id := range []string{"e-1", "e-2", "e-1"} {
		require.NoError(t, pub.Publish(ctx, "acme", testEnvelope(id)))
	}
	other := testEnvelope("e-3")
	other.TenantID = "globex"
	require.NoError(t, pub.Publish(ctx, "globex", other))

	cons, err := NewConsumer(ctx, ConsumerConfig{
		Connect:  connect,
		Durable:  "acme-view",
		TenantID: "acme",
		NakDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cons.Close() })

	c := &collector{}
	require.NoError(t, cons.Start(ctx, c))

	// the duplicate e-1 is dropped by the server, the first delivery of e-1
	// fails once and is redelivered
	require.Eventually(t, func() bool {
		return len(c.ids()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	require.ElementsMatch(t, []string{"e-1", "e-2"}, c.ids())
}
