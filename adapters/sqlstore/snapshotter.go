package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

// Snapshotter keeps the latest snapshot per aggregate. Older snapshots never
// overwrite newer ones.
type Snapshotter struct {
	db *DB
}

func NewSnapshotter(db *DB) *Snapshotter { return &Snapshotter{db: db} }

func (s *Snapshotter) SaveSnapshot(ctx context.Context, ss *es.Snapshot) error {
	if ss == nil {
		return errors.New("snapshot is nil")
	}
	if err := es.ValidateStreamKey(ss.TenantID, ss.ObjType, ss.ObjID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO es_snapshots (tenant_id, aggregate_type, aggregate_id, snapshot_id, version,
			stream_seq, schema_version, encoding, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, aggregate_type, aggregate_id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			version = excluded.version,
			stream_seq = excluded.stream_seq,
			schema_version = excluded.schema_version,
			encoding = excluded.encoding,
			data = excluded.data,
			created_at = excluded.created_at
		WHERE es_snapshots.version <= excluded.version`,
		ss.TenantID, ss.ObjType, ss.ObjID, ss.SnapshotID, int64(ss.ObjVersion),
		int64(ss.StreamSeq), ss.SchemaVersion, ss.Encoding, ss.Data, s.db.timeArg(ss.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Snapshotter) LoadSnapshot(ctx context.Context, tenantID, objType, objID string) (*es.Snapshot, error) {
	var (
		ss        = &es.Snapshot{TenantID: tenantID, ObjType: objType, ObjID: objID}
		version   int64
		streamSeq int64
		createdAt any
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_id, version, stream_seq, schema_version, encoding, data, created_at
		FROM es_snapshots
		WHERE tenant_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
		tenantID, objType, objID,
	).Scan(&ss.SnapshotID, &version, &streamSeq, &ss.SchemaVersion, &ss.Encoding, &ss.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, es.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	ss.ObjVersion = es.Version(version)
	ss.StreamSeq = uint64(streamSeq)
	if ss.CreatedAt, err = timeValue(createdAt); err != nil {
		return nil, err
	}
	return ss, nil
}

var _ es.Snapshotter = (*Snapshotter)(nil)
