package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put(t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, s.Len())
}

func Test_MemoryTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemStore()
	s.now = func() time.Time { return now }

	require.NoError(t, Put(t.Context(), s, "short", 1, PutOptions{TTL: time.Minute}))
	require.NoError(t, Put(t.Context(), s, "forever", 2, PutOptions{}))

	v, err := Get[int](t.Context(), s, "short")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, err = Get[int](t.Context(), s, "short")
	require.ErrorIs(t, err, ErrNotFound)

	v, err = Get[int](t.Context(), s, "forever")
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"snapshot.acme.ticket.t-1", "a/b_c=d"} {
		require.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", ".lead", "trail.", "sp ace", "star*"} {
		require.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}
