package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

// ProjectionStore runs projections against the same database as the event
// store. Read-model tables are written through the *Tx handed to Apply.
type ProjectionStore struct {
	db *DB
}

func NewProjectionStore(db *DB) *ProjectionStore { return &ProjectionStore{db: db} }

func (s *ProjectionStore) RunInTx(
	ctx context.Context,
	fn func(ctx context.Context, tx es.ProjectionTx[*Tx]) error,
) error {
	return s.db.InTx(ctx, func(tx *Tx) error {
		return fn(ctx, &projectionTx{tx: tx, db: s.db})
	})
}

// ProcessedCount returns how many events projector has marked as processed.
func (s *ProjectionStore) ProcessedCount(ctx context.Context, projector string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM es_processed_events WHERE projector = ?`, projector,
	).Scan(&n)
	return n, err
}

type projectionTx struct {
	tx *Tx
	db *DB
}

func (p *projectionTx) Tx() *Tx { return p.tx }

// lock serializes transactions that touch the same key until commit. Only
// postgres needs it; sqlite transactions already start with a write lock.
func (p *projectionTx) lock(ctx context.Context, key string) error {
	if p.tx.Dialect() != Postgres {
		return nil
	}
	if _, err := p.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, key); err != nil {
		return fmt.Errorf("acquire projection lock: %w", err)
	}
	return nil
}

func (p *projectionTx) IsProcessed(ctx context.Context, projector, eventID string) (bool, error) {
	if err := p.lock(ctx, "es_processed/"+projector+"/"+eventID); err != nil {
		return false, err
	}
	var one int
	err := p.tx.QueryRowContext(ctx,
		`SELECT 1 FROM es_processed_events WHERE projector = ? AND event_id = ?`,
		projector, eventID,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check processed: %w", err)
	}
	return true, nil
}

func (p *projectionTx) MarkProcessed(ctx context.Context, projector string, env es.Envelope) error {
	_, err := p.tx.ExecContext(ctx,
		`INSERT INTO es_processed_events (projector, event_id, tenant_id, stream_id, version, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projector, env.ID, env.TenantID, env.StreamID, int64(env.Version), p.db.timeArg(time.Now()),
	)
	switch {
	case isUniqueViolation(err, "es_processed_events"):
		return fmt.Errorf("event %s already processed by %s: %w", env.ID, projector, err)
	case err != nil:
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (p *projectionTx) StreamVersion(ctx context.Context, projector, tenantID, streamID string) (es.Version, error) {
	if err := p.lock(ctx, "es_projection_streams/"+projector+"/"+tenantID+"/"+streamID); err != nil {
		return 0, err
	}
	var v int64
	err := p.tx.QueryRowContext(ctx,
		`SELECT last_version FROM es_projection_streams WHERE projector = ? AND tenant_id = ? AND stream_id = ?`,
		projector, tenantID, streamID,
	).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read projection stream version: %w", err)
	}
	return es.Version(v), nil
}

func (p *projectionTx) SetStreamVersion(ctx context.Context, projector, tenantID, streamID string, v es.Version) error {
	_, err := p.tx.ExecContext(ctx,
		`INSERT INTO es_projection_streams (projector, tenant_id, stream_id, last_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projector, tenant_id, stream_id) DO UPDATE SET last_version = excluded.last_version`,
		projector, tenantID, streamID, int64(v),
	)
	if err != nil {
		return fmt.Errorf("write projection stream version: %w", err)
	}
	return nil
}

var _ es.ProjectionStore[*Tx] = (*ProjectionStore)(nil)

// CursorStore persists tailer cursors.
type CursorStore struct {
	db *DB
}

func NewCursorStore(db *DB) *CursorStore { return &CursorStore{db: db} }

func (c *CursorStore) GetCursor(ctx context.Context, name string) (uint64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx,
		`SELECT last_seq FROM es_projection_cursors WHERE name = ?`, name,
	).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, es.ErrCheckpointNotFound
	case err != nil:
		return 0, fmt.Errorf("read cursor %s: %w", name, err)
	}
	return uint64(seq), nil
}

func (c *CursorStore) SetCursor(ctx context.Context, name string, lastSeq uint64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO es_projection_cursors (name, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET last_seq = excluded.last_seq, updated_at = excluded.updated_at`,
		name, int64(lastSeq), c.db.timeArg(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("write cursor %s: %w", name, err)
	}
	return nil
}

var _ es.CursorStore = (*CursorStore)(nil)
