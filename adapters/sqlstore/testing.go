package sqlstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// ContainerTestsEnv enables tests that start docker containers.
const ContainerTestsEnv = "EAFES_CONTAINER_TESTS"

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	TempDir() string
	Cleanup(func())
}

func ContainerTestsEnabled() bool { return os.Getenv(ContainerTestsEnv) == "1" }

// NewTestSQLite opens a migrated SQLite database in a temp dir.
func NewTestSQLite(t Testing) *DB {
	db, err := Open(t.Context(), Config{
		DatabaseURL: "sqlite:file:" + filepath.Join(t.TempDir(), "events.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(t.Context()))
	return db
}

// NewTestPostgres starts a postgres container and returns a migrated DB. The
// test is skipped unless container tests are enabled.
func NewTestPostgres(t Testing) *DB {
	if !ContainerTestsEnabled() {
		t.Skipf("set %s=1 to run postgres tests", ContainerTestsEnv)
	}
	ctx := t.Context()
	pgC, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("eafes"),
		tcpostgres.WithUsername("eafes"),
		tcpostgres.WithPassword("eafes"),
		tcpostgres.WithSQLDriver("pgx"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgC); err != nil {
			t.Logf("failed to terminate container: %s", err.Error())
		}
	})

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	t.Logf("postgres dsn: %s", dsn)

	db, err := Open(ctx, Config{DatabaseURL: dsn, MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}
