package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

func TestSnapshotter_KeepsNewest(t *testing.T) {
	eachDB(t, func(t *testing.T, db *DB) {
		snaps := NewSnapshotter(db)
		ctx := t.Context()

		_, err := snaps.LoadSnapshot(ctx, "acme", "counter", "c1")
		require.ErrorIs(t, err, es.ErrSnapshotNotFound)

		save := func(v es.Version, data string) {
			require.NoError(t, snaps.SaveSnapshot(ctx, &es.Snapshot{
				SnapshotID:    uuid.NewString(),
				TenantID:      "acme",
				ObjType:       "counter",
				ObjID:         "c1",
				ObjVersion:    v,
				StreamSeq:     uint64(v) * 10,
				CreatedAt:     time.Now(),
				SchemaVersion: 1,
				Encoding:      "json",
				Data:          []byte(data),
			}))
		}
		save(5, `{"value":5}`)
		save(3, `{"value":3}`)

		ss, err := snaps.LoadSnapshot(ctx, "acme", "counter", "c1")
		require.NoError(t, err)
		require.EqualValues(t, 5, ss.ObjVersion)
		require.EqualValues(t, 50, ss.StreamSeq)
		require.JSONEq(t, `{"value":5}`, string(ss.Data))

		save(7, `{"value":7}`)
		ss, err = snaps.LoadSnapshot(ctx, "acme", "counter", "c1")
		require.NoError(t, err)
		require.EqualValues(t, 7, ss.ObjVersion)

		_, err = snaps.LoadSnapshot(ctx, "globex", "counter", "c1")
		require.ErrorIs(t, err, es.ErrSnapshotNotFound)
	})
}

func TestProjectionStore_MarkersCommitWithTx(t *testing.T) {
	eachDB(t, func(t *testing.T, db *DB) {
		ps := NewProjectionStore(db)
		ctx := t.Context()
		env := es.Envelope{ID: uuid.NewString(), TenantID: "acme", StreamID: "counter-c1", Version: 1}

		boom := errors.New("boom")
		err := ps.RunInTx(ctx, func(ctx context.Context, tx es.ProjectionTx[*Tx]) error {
			require.NoError(t, tx.MarkProcessed(ctx, "p", env))
			require.NoError(t, tx.SetStreamVersion(ctx, "p", "acme", "counter-c1", 1))
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = ps.RunInTx(ctx, func(ctx context.Context, tx es.ProjectionTx[*Tx]) error {
			done, err := tx.IsProcessed(ctx, "p", env.ID)
			require.NoError(t, err)
			require.False(t, done, "rolled back marker must not be visible")
			v, err := tx.StreamVersion(ctx, "p", "acme", "counter-c1")
			require.NoError(t, err)
			require.EqualValues(t, 0, v)

			require.NoError(t, tx.MarkProcessed(ctx, "p", env))
			return tx.SetStreamVersion(ctx, "p", "acme", "counter-c1", 1)
		})
		require.NoError(t, err)

		err = ps.RunInTx(ctx, func(ctx context.Context, tx es.ProjectionTx[*Tx]) error {
			return tx.MarkProcessed(ctx, "p", env)
		})
		require.ErrorContains(t, err, "already processed")

		n, err := ps.ProcessedCount(ctx, "p")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.NoError(t, ps.RunInTx(ctx, func(ctx context.Context, tx es.ProjectionTx[*Tx]) error {
			done, err := tx.IsProcessed(ctx, "p", env.ID)
			require.NoError(t, err)
			require.True(t, done)
			done, err = tx.IsProcessed(ctx, "other", env.ID)
			require.NoError(t, err)
			require.False(t, done)
			v, err := tx.StreamVersion(ctx, "p", "acme", "counter-c1")
			require.NoError(t, err)
			require.EqualValues(t, 1, v)
			return nil
		}))
	})
}

type countProjection struct{}

func (countProjection) Name() string { return "counts" }

func (countProjection) Apply(ctx context.Context, tx *Tx, env es.Envelope, _ any) error {
	if _, err := tx.ExecContext(ctx, `UPDATE test_counts SET n = n + 1 WHERE id = ?`, env.StreamID); err != nil {
		return err
	}
	// hold the transaction open so concurrent deliveries overlap
	time.Sleep(50 * time.Millisecond)
	return nil
}

type rawDecoder struct{}

func (rawDecoder) Decode(env es.Envelope) (any, error) { return env.Data, nil }

func TestProjector_ConcurrentDeliveryAppliesOnce(t *testing.T) {
	eachDB(t, func(t *testing.T, db *DB) {
		ctx := t.Context()
		_, err := db.ExecContext(ctx, `CREATE TABLE test_counts (id TEXT PRIMARY KEY, n BIGINT NOT NULL)`)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `INSERT INTO test_counts (id, n) VALUES (?, 0)`, "counter-c1")
		require.NoError(t, err)

		ps := NewProjectionStore(db)
		p, err := es.NewProjector[*Tx](countProjection{}, ps, rawDecoder{})
		require.NoError(t, err)

		env := es.Envelope{
			ID:       uuid.NewString(),
			Type:     "counter.incremented",
			TenantID: "acme",
			StreamID: "counter-c1",
			Version:  1,
			Data:     []byte(`{"by":1}`),
		}

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, p.Project(ctx, env))
			}()
		}
		wg.Wait()

		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT n FROM test_counts WHERE id = ?`, "counter-c1").Scan(&n))
		require.Equal(t, 1, n)

		processed, err := ps.ProcessedCount(ctx, "counts")
		require.NoError(t, err)
		require.Equal(t, 1, processed)
	})
}

func TestCursorStore(t *testing.T) {
	eachDB(t, func(t *testing.T, db *DB) {
		cs := NewCursorStore(db)
		ctx := t.Context()

		_, err := cs.GetCursor(ctx, "tickets")
		require.ErrorIs(t, err, es.ErrCheckpointNotFound)

		require.NoError(t, cs.SetCursor(ctx, "tickets", 4))
		require.NoError(t, cs.SetCursor(ctx, "tickets", 9))
		seq, err := cs.GetCursor(ctx, "tickets")
		require.NoError(t, err)
		require.EqualValues(t, 9, seq)
	})
}
