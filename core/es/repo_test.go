package es

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithTransaction_ContextEndsMidCommand(t *testing.T) {
	repo := NewTypedRepository[*noteAgg](NewInMemoryStore(), newNoteRegistry())

	for range 50 {
		ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond)
		n, err := repo.WithTransaction(ctx, "acme", "n1", func(n *noteAgg) error {
			time.Sleep(3 * time.Millisecond)
			return n.Write("slow")
		}, WithCreate())
		cancel()

		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Nil(t, n)
	}

	// queued behind the abandoned commands, so it also waits for them
	n, err := repo.WithTransaction(t.Context(), "acme", "n1", func(n *noteAgg) error {
		return n.Write("last")
	}, WithCreate())
	require.NoError(t, err)
	require.Equal(t, "last", n.Text)
	require.Equal(t, Version(n.Edits), n.GetVersion())
}

func TestWithTransaction_ReturnsCommandResult(t *testing.T) {
	repo := NewTypedRepository[*noteAgg](NewInMemoryStore(), newNoteRegistry())

	n, err := repo.WithTransaction(t.Context(), "acme", "n1", func(n *noteAgg) error {
		return n.Write("hello")
	}, WithCreate())
	require.NoError(t, err)
	require.Equal(t, Version(1), n.GetVersion())

	_, err = repo.WithTransaction(t.Context(), "acme", "missing", func(n *noteAgg) error {
		return n.Write("x")
	})
	require.ErrorIs(t, err, ErrAggregateNotFound)
}

func TestRepository_SnapshotAheadOfStreamIsIgnored(t *testing.T) {
	ctx := t.Context()
	snaps := NewInMemorySnapshotter()

	// a snapshot at version 3 written against a store that is later wiped
	old := NewTypedRepository[*noteAgg](NewInMemoryStore(), newNoteRegistry(), WithSnapshotter(snaps))
	n := old.NewWithID("n1")
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, n.Write(text))
	}
	require.NoError(t, old.Save(ctx, "acme", n, WithSnapshot(true)))
	ss, err := snaps.LoadSnapshot(ctx, "acme", "note", "n1")
	require.NoError(t, err)
	require.Equal(t, Version(3), ss.ObjVersion)

	fresh := NewTypedRepository[*noteAgg](NewInMemoryStore(), newNoteRegistry(), WithSnapshotter(snaps))
	n = fresh.NewWithID("n1")
	require.NoError(t, n.Write("only"))
	require.NoError(t, fresh.Save(ctx, "acme", n))

	got, err := fresh.GetByID(ctx, "acme", "n1", WithSnapshot(true))
	require.NoError(t, err)
	require.Equal(t, Version(1), got.GetVersion())
	require.Equal(t, "only", got.Text)

	require.NoError(t, got.Write("next"))
	require.NoError(t, fresh.Save(ctx, "acme", got))
	require.Equal(t, Version(2), got.GetVersion())
}
