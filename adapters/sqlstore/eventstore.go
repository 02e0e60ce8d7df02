package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

// appendLockKey serializes Postgres appends so global sequence ids become
// visible in commit order and tailers never skip a late commit.
const appendLockKey int64 = 0x6561666573

const eventColumns = `global_sequence_id, event_id, stream_id, aggregate_id, aggregate_type, tenant_id,
	sequence_number, event_type, payload, metadata, timestamp_utc`

type EventStore struct {
	db      *DB
	log     *slog.Logger
	metrics es.ESMetrics
}

type EventStoreOption func(*EventStore)

func WithStoreMetrics(m es.ESMetrics) EventStoreOption {
	return func(s *EventStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewEventStore(db *DB, opts ...EventStoreOption) *EventStore {
	s := &EventStore{
		db:      db,
		log:     db.log.With(slog.String("store", "sql")),
		metrics: es.NopESMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventStore) isStreamConflict(err error) bool {
	if s.db.dialect == Postgres {
		return isUniqueViolation(err, streamVersionConstraint)
	}
	return isUniqueViolation(err, "sequence_number")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (es.Envelope, error) {
	var (
		env      es.Envelope
		seq      int64
		version  int64
		payload  []byte
		metadata []byte
		ts       any
	)
	if err := row.Scan(
		&seq,
		&env.ID,
		&env.StreamID,
		&env.AggregateID,
		&env.AggregateType,
		&env.TenantID,
		&version,
		&env.Type,
		&payload,
		&metadata,
		&ts,
	); err != nil {
		return env, err
	}
	env.Seq = uint64(seq)
	env.Version = es.Version(version)
	env.Data = append([]byte(nil), payload...)

	occurredAt, err := timeValue(ts)
	if err != nil {
		return env, err
	}
	env.OccurredAt = occurredAt

	if len(metadata) > 0 && string(metadata) != "null" {
		md := &es.Metadata{}
		if err := json.Unmarshal(metadata, md); err != nil {
			return env, fmt.Errorf("decode metadata of event %s: %w", env.ID, err)
		}
		env.Metadata = md
	}
	return env, nil
}

func (s *EventStore) CurrentVersion(ctx context.Context, tenantID, aggType, aggID string) (es.Version, error) {
	if err := es.ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return 0, err
	}
	return currentVersion(ctx, s.db, tenantID, es.StreamID(aggType, aggID))
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryRower, tenantID, streamID string) (es.Version, error) {
	var v int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM es_events WHERE tenant_id = ? AND stream_id = ?`,
		tenantID, streamID,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	return es.Version(v), nil
}

func (s *EventStore) Load(
	ctx context.Context,
	tenantID,
	aggType,
	aggID string,
	opts ...es.StoreLoadOption,
) ([]es.Envelope, error) {
	if err := es.ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return nil, err
	}
	defer s.metrics.StoreLoadDuration(aggType).ObserveDuration()

	startVersion := es.NewStoreLoadOptions(opts...)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM es_events
		WHERE tenant_id = ? AND stream_id = ? AND sequence_number >= ?
		ORDER BY sequence_number`,
		tenantID, es.StreamID(aggType, aggID), int64(startVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("load stream: %w", err)
	}
	return collect(rows)
}

func (s *EventStore) LoadAllSince(ctx context.Context, afterSeq uint64, limit int) ([]es.Envelope, error) {
	if limit <= 0 {
		limit = es.DefaultBatchSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM es_events
		WHERE global_sequence_id > ?
		ORDER BY global_sequence_id
		LIMIT ?`,
		int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load all since %d: %w", afterSeq, err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]es.Envelope, error) {
	defer rows.Close()
	out := make([]es.Envelope, 0)
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *EventStore) Append(
	ctx context.Context,
	tenantID string,
	aggType string,
	aggID string,
	expectVersion es.Version,
	events []es.Envelope,
) (*es.StoreAppendResult, error) {
	if err := es.ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return nil, err
	}
	defer s.metrics.StoreAppendDuration(aggType).ObserveDuration()

	streamID := es.StreamID(aggType, aggID)
	res := &es.StoreAppendResult{}

	err := s.db.InTx(ctx, func(tx *Tx) error {
		if s.db.dialect == Postgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(?)`, appendLockKey); err != nil {
				return fmt.Errorf("acquire append lock: %w", err)
			}
		}

		cur, err := currentVersion(ctx, tx, tenantID, streamID)
		if err != nil {
			return err
		}
		prepared, err := es.PrepareAppend(tenantID, aggType, aggID, expectVersion, cur, events)
		if err != nil {
			return err
		}

		for _, env := range prepared {
			var metadata any
			if !env.Metadata.IsZero() {
				b, err := json.Marshal(env.Metadata)
				if err != nil {
					return fmt.Errorf("encode metadata of event %s: %w", env.ID, err)
				}
				metadata = string(b)
			}
			payload := string(env.Data)
			if len(env.Data) == 0 {
				payload = "null"
			}

			var seq int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO es_events (event_id, stream_id, aggregate_id, aggregate_type, tenant_id,
					sequence_number, event_type, payload, metadata, timestamp_utc)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING global_sequence_id`,
				env.ID, env.StreamID, env.AggregateID, env.AggregateType, env.TenantID,
				int64(env.Version), env.Type, payload, metadata, s.db.timeArg(env.OccurredAt),
			).Scan(&seq)
			if err != nil {
				return fmt.Errorf("insert event %s: %w", env.ID, err)
			}
			res.Versions = append(res.Versions, env.Version)
			res.Seqs = append(res.Seqs, uint64(seq))
		}
		res.LastVersion = prepared[len(prepared)-1].Version
		res.LastSeq = res.Seqs[len(res.Seqs)-1]
		return nil
	})
	if err != nil {
		if s.isStreamConflict(err) {
			return nil, s.conflict(ctx, tenantID, aggType, aggID, expectVersion)
		}
		return nil, err
	}

	s.metrics.EventsAppended(aggType, len(res.Versions))
	s.log.Debug(
		"append",
		slog.String("tenant", tenantID),
		slog.String("stream", streamID),
		slog.Uint64("last_seq", res.LastSeq),
		res.LastVersion.SlogAttrWithKey("last_version"),
		slog.Int("num_events", len(res.Versions)),
	)
	return res, nil
}

// conflict turns a storage-level uniqueness failure into a ConcurrencyError
// carrying the version that won.
func (s *EventStore) conflict(ctx context.Context, tenantID, aggType, aggID string, expected es.Version) error {
	actual, err := currentVersion(ctx, s.db, tenantID, es.StreamID(aggType, aggID))
	if err != nil {
		return errors.Join(&es.ConcurrencyError{
			TenantID:      tenantID,
			AggregateType: aggType,
			AggregateID:   aggID,
			Expected:      expected,
		}, err)
	}
	return &es.ConcurrencyError{
		TenantID:      tenantID,
		AggregateType: aggType,
		AggregateID:   aggID,
		Expected:      expected,
		Actual:        actual,
	}
}

var _ es.EventStore = (*EventStore)(nil)
