package es

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

type TestingEnv struct {
	*Env
	t *testing.T
}

func (e *TestingEnv) Assert() *TestingEnvAssert {
	return &TestingEnvAssert{env: e}
}

// StartTestEnv builds an in-memory Env that is shut down with the test.
// The tailer is not started; tests drive it with Assert().CatchUp.
func StartTestEnv(
	t *testing.T,
	opts ...EnvOption,
) *TestingEnv {
	t.Helper()
	e, err := NewEnv(
		WithSnapshotter(NewInMemorySnapshotter()),
		WithEnvOpts(opts...),
	)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return &TestingEnv{
		t:   t,
		Env: e,
	}
}

type TestingEnvAssert struct {
	env *TestingEnv
}

func (a *TestingEnvAssert) Append(
	ctx context.Context,
	tenantID string,
	expect Version,
	aggType string,
	aggID string,
	events ...any,
) *StoreAppendResult {
	a.env.t.Helper()
	res, err := a.env.Append(ctx, tenantID, expect, aggType, aggID, events...)
	require.NoError(a.env.t, err)
	return res
}

// CatchUp runs the tailer once and requires every subscriber to succeed.
func (a *TestingEnvAssert) CatchUp(ctx context.Context) int {
	a.env.t.Helper()
	require.NotNil(a.env.t, a.env.tailer, "env has no subscribers")
	n, err := a.env.tailer.RunOnce(ctx)
	require.NoError(a.env.t, err)
	return n
}

// StreamVersion requires the stream to be at version v.
func (a *TestingEnvAssert) StreamVersion(ctx context.Context, tenantID, aggType, aggID string, v Version) {
	a.env.t.Helper()
	cur, err := a.env.store.CurrentVersion(ctx, tenantID, aggType, aggID)
	require.NoError(a.env.t, err)
	require.Equal(a.env.t, v, cur)
}
