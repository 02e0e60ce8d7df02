package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
)

// streamVersionConstraint backs the per-stream version invariant in storage.
const streamVersionConstraint = "es_events_stream_version_key"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS es_events (
		global_sequence_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_id           UUID        NOT NULL UNIQUE,
		stream_id          TEXT        NOT NULL,
		aggregate_id       TEXT        NOT NULL,
		aggregate_type     TEXT        NOT NULL,
		tenant_id          TEXT        NOT NULL,
		sequence_number    BIGINT      NOT NULL CHECK (sequence_number > 0),
		event_type         TEXT        NOT NULL,
		payload            JSONB       NOT NULL,
		metadata           JSONB,
		timestamp_utc      TIMESTAMPTZ NOT NULL,
		CONSTRAINT ` + streamVersionConstraint + ` UNIQUE (tenant_id, stream_id, sequence_number)
	)`,
	`CREATE TABLE IF NOT EXISTS es_snapshots (
		tenant_id      TEXT        NOT NULL,
		aggregate_type TEXT        NOT NULL,
		aggregate_id   TEXT        NOT NULL,
		snapshot_id    TEXT        NOT NULL,
		version        BIGINT      NOT NULL,
		stream_seq     BIGINT      NOT NULL,
		schema_version INTEGER     NOT NULL,
		encoding       TEXT        NOT NULL,
		data           BYTEA       NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, aggregate_type, aggregate_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_processed_events (
		projector    TEXT        NOT NULL,
		event_id     TEXT        NOT NULL,
		tenant_id    TEXT        NOT NULL,
		stream_id    TEXT        NOT NULL,
		version      BIGINT      NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (projector, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_projection_streams (
		projector    TEXT   NOT NULL,
		tenant_id    TEXT   NOT NULL,
		stream_id    TEXT   NOT NULL,
		last_version BIGINT NOT NULL,
		PRIMARY KEY (projector, tenant_id, stream_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_projection_cursors (
		name       TEXT        PRIMARY KEY,
		last_seq   BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS es_events (
		global_sequence_id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id           TEXT    NOT NULL UNIQUE,
		stream_id          TEXT    NOT NULL,
		aggregate_id       TEXT    NOT NULL,
		aggregate_type     TEXT    NOT NULL,
		tenant_id          TEXT    NOT NULL,
		sequence_number    INTEGER NOT NULL CHECK (sequence_number > 0),
		event_type         TEXT    NOT NULL,
		payload            TEXT    NOT NULL,
		metadata           TEXT,
		timestamp_utc      TEXT    NOT NULL,
		CONSTRAINT ` + streamVersionConstraint + ` UNIQUE (tenant_id, stream_id, sequence_number)
	)`,
	`CREATE TABLE IF NOT EXISTS es_snapshots (
		tenant_id      TEXT    NOT NULL,
		aggregate_type TEXT    NOT NULL,
		aggregate_id   TEXT    NOT NULL,
		snapshot_id    TEXT    NOT NULL,
		version        INTEGER NOT NULL,
		stream_seq     INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		encoding       TEXT    NOT NULL,
		data           BLOB    NOT NULL,
		created_at     TEXT    NOT NULL,
		PRIMARY KEY (tenant_id, aggregate_type, aggregate_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_processed_events (
		projector    TEXT    NOT NULL,
		event_id     TEXT    NOT NULL,
		tenant_id    TEXT    NOT NULL,
		stream_id    TEXT    NOT NULL,
		version      INTEGER NOT NULL,
		processed_at TEXT    NOT NULL,
		PRIMARY KEY (projector, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_projection_streams (
		projector    TEXT    NOT NULL,
		tenant_id    TEXT    NOT NULL,
		stream_id    TEXT    NOT NULL,
		last_version INTEGER NOT NULL,
		PRIMARY KEY (projector, tenant_id, stream_id)
	)`,
	`CREATE TABLE IF NOT EXISTS es_projection_cursors (
		name       TEXT    PRIMARY KEY,
		last_seq   INTEGER NOT NULL,
		updated_at TEXT    NOT NULL
	)`,
}

// Migrate creates the event store tables. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.dialect == Postgres {
		stmts = postgresSchema
	}
	return d.ExecScript(ctx, stmts...)
}

// ExecScript runs stmts in one transaction.
func (d *DB) ExecScript(ctx context.Context, stmts ...string) error {
	return d.InTx(ctx, func(tx *Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i, err)
			}
		}
		d.log.Debug("script applied", slog.Int("statements", len(stmts)))
		return nil
	})
}
