package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRaiseAndApply(t *testing.T) {
	n := &noteAgg{}
	require.NoError(t, n.Write("first"))
	require.Equal(t, "first", n.Text)
	require.Len(t, n.Uncommitted(), 1)

	require.Error(t, n.Write(""), "invalid events are neither raised nor applied")
	require.Len(t, n.Uncommitted(), 1)
	require.Equal(t, 1, n.Edits)
}

func TestLoadFromHistory(t *testing.T) {
	dec := NewJSONSerializer(newNoteRegistry())
	history := func(versions ...Version) []Envelope {
		out := make([]Envelope, 0, len(versions))
		for _, v := range versions {
			env := noteEnvelope("e", "v")
			env.Version = v
			env.Seq = uint64(v) * 10
			out = append(out, env)
		}
		return out
	}

	t.Run("folds in order", func(t *testing.T) {
		n := &noteAgg{}
		require.NoError(t, LoadFromHistory(n, dec, history(1, 2, 3)))
		require.Equal(t, Version(3), n.GetVersion())
		require.Equal(t, uint64(30), n.GetSeq())
		require.Equal(t, 3, n.Edits)
		require.Empty(t, n.Uncommitted())
	})

	t.Run("rejects gaps", func(t *testing.T) {
		n := &noteAgg{}
		err := LoadFromHistory(n, dec, history(1, 3))
		require.ErrorIs(t, err, ErrEventOutOfOrder)
	})

	t.Run("unknown event aborts", func(t *testing.T) {
		n := &noteAgg{}
		h := history(1)
		h[0].Type = "note.archived"
		require.ErrorIs(t, LoadFromHistory(n, dec, h), ErrUnknownEventType)
		require.Zero(t, n.GetVersion())
	})
}

func TestSnapshot_RestoreIsAllOrNothing(t *testing.T) {
	n := &noteAgg{}
	n.SetID("n1")
	n.setTenantID("acme")
	require.NoError(t, n.Write("kept"))
	n.setVersion(1)
	n.ClearUncommitted()

	ss, err := CreateSnapshot(n)
	require.NoError(t, err)
	require.Equal(t, 1, ss.SchemaVersion)

	restored := &noteAgg{}
	restored.SetID("n1")
	require.NoError(t, RestoreSnapshot(restored, ss))
	require.Equal(t, "kept", restored.Text)
	require.Equal(t, Version(1), restored.GetVersion())
	require.Equal(t, "n1", restored.GetID())

	broken := *ss
	broken.Data = []byte(`{"text":`)
	target := &noteAgg{}
	target.SetID("n1")
	require.Error(t, RestoreSnapshot(target, &broken))
	require.Empty(t, target.Text)
	require.Zero(t, target.GetVersion())

	foreign := *ss
	foreign.ObjID = "n2"
	require.Error(t, RestoreSnapshot(target, &foreign))
}
