package es

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultBatchSize is used by LoadAllSince when no positive limit is given.
const DefaultBatchSize = 500

type (
	startVersionOption valueOption[Version]

	eventStoreLoadOptions struct {
		startVersion Version
	}

	StoreLoadOptionsReceiver interface {
		SetStartVersion(Version)
	}

	StoreLoadOption interface {
		ApplyToStoreLoadOptions(StoreLoadOptionsReceiver)
	}
)

func (e *eventStoreLoadOptions) SetStartVersion(v Version) { e.startVersion = v }

// WithStartAtVersion restricts Load to events with Version >= startVersion.
func WithStartAtVersion(startVersion Version) StoreLoadOption {
	return startVersionOption{startVersion}
}

func (o startVersionOption) ApplyToStoreLoadOptions(receiver StoreLoadOptionsReceiver) {
	receiver.SetStartVersion(o.v)
}

// NewStoreLoadOptions folds opts and returns the minimum version to include.
func NewStoreLoadOptions(opts ...StoreLoadOption) (startVersion Version) {
	o := &eventStoreLoadOptions{}
	for _, opt := range opts {
		opt.ApplyToStoreLoadOptions(o)
	}
	return o.startVersion
}

type (
	// StoreAppendResult describes the positions assigned by an append.
	StoreAppendResult struct {
		Versions    []Version
		Seqs        []uint64
		LastVersion Version
		LastSeq     uint64
	}

	// EventStore is the append-only, tenant-partitioned event log.
	//
	// Append is atomic: it reads the current version of the stream, compares it
	// with expectedVersion (unless AnyVersion), assigns consecutive versions and
	// strictly increasing global sequence numbers and persists all events or
	// none. A mismatch yields a *ConcurrencyError. Stores never retry conflicts.
	//
	// Load returns the events of one stream of one tenant ordered by version. A
	// missing stream is an empty result, not an error.
	//
	// LoadAllSince returns events of all tenants with Seq > afterSeq ordered by Seq.
	EventStore interface {
		Append(ctx context.Context, tenantID, aggType, aggID string, expectedVersion Version, events []Envelope) (*StoreAppendResult, error)
		Load(ctx context.Context, tenantID, aggType, aggID string, opts ...StoreLoadOption) ([]Envelope, error)
		LoadAllSince(ctx context.Context, afterSeq uint64, limit int) ([]Envelope, error)
		CurrentVersion(ctx context.Context, tenantID, aggType, aggID string) (Version, error)
	}
)

// ValidateStreamKey checks the identity arguments shared by all store calls.
func ValidateStreamKey(tenantID, aggType, aggID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	if strings.Contains(aggType, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidAggregateType, aggType)
	}
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	return nil
}

// PrepareAppend validates an append request and returns copies of the
// envelopes stamped with the stream identity and consecutive versions starting
// at current+1. Stores call it after reading the current version and before
// persisting.
func PrepareAppend(
	tenantID, aggType, aggID string,
	expected, current Version,
	events []Envelope,
) ([]Envelope, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}
	if !expected.IsAny() && expected != current {
		return nil, &ConcurrencyError{
			TenantID:      tenantID,
			AggregateType: aggType,
			AggregateID:   aggID,
			Expected:      expected,
			Actual:        current,
		}
	}

	out := make([]Envelope, len(events))
	for i, e := range events {
		if e.AggregateType != "" && e.AggregateType != aggType {
			return nil, fmt.Errorf("envelope %s: aggregate type %q does not match stream %q", e.ID, e.AggregateType, aggType)
		}
		if e.AggregateID != "" && e.AggregateID != aggID {
			return nil, fmt.Errorf("envelope %s: aggregate id %q does not match stream %q", e.ID, e.AggregateID, aggID)
		}
		e.TenantID = tenantID
		e.AggregateType = aggType
		e.AggregateID = aggID
		e.StreamID = StreamID(aggType, aggID)
		e.Version = current + Version(i+1)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("invalid envelope at index %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}
