package es

import (
	"fmt"
)

// Applier is the interface for types that can apply events to update their state.
type Applier interface {
	Apply(event any) error
}

// Aggregate is the core interface for event-sourced domain objects.
// It defines the contract that all aggregate roots must implement to work
// with the Repository for loading and persisting state through events.
//
// An aggregate maintains:
//   - Identity: tenant, type and ID that uniquely identify the aggregate stream
//   - Version: the sequence number of the last applied event (0 = new)
//   - Sequence: the global store sequence of the last applied event
//   - Uncommitted events: events raised but not yet persisted
//
// The typical lifecycle is:
//  1. Create a new aggregate via a factory that raises its first event, or load one via Repository
//  2. Execute domain logic that calls RaiseAndApply to record events
//  3. Save via Repository which persists uncommitted events and calls ClearUncommitted()
type Aggregate interface {
	// GetAggType returns the aggregate type name used for stream identification.
	GetAggType() string
	// GetID returns the unique identifier of this aggregate instance.
	GetID() string
	// SetID sets the aggregate ID. Typically called during creation.
	SetID(string)
	// GetTenantID returns the tenant the aggregate was loaded for or saved under.
	GetTenantID() string
	setTenantID(string)

	// GetVersion returns the current version (number of events applied).
	GetVersion() Version
	setVersion(Version)

	// GetSeq returns the global stream sequence of the last applied event.
	GetSeq() uint64
	setSeq(uint64)

	// Register registers event types with the provided Registrar.
	Register(r Registrar)
	// Raise records an event as uncommitted without applying it.
	Raise(event any)
	// Apply updates the aggregate state from an event.
	Apply(event any) error

	// Uncommitted returns a copy of events raised but not yet persisted.
	Uncommitted() []any
	// ClearUncommitted removes all uncommitted events after successful save.
	ClearUncommitted()
}

// BaseAggregate is an embeddable helper that tracks version + uncommitted events.
type BaseAggregate struct {
	id          string
	tenantID    string
	version     Version
	seq         uint64
	uncommitted []any
}

func (b *BaseAggregate) GetID() string            { return b.id }
func (b *BaseAggregate) SetID(id string)          { b.id = id }
func (b *BaseAggregate) GetTenantID() string      { return b.tenantID }
func (b *BaseAggregate) setTenantID(t string)     { b.tenantID = t }
func (b *BaseAggregate) GetVersion() Version      { return b.version }
func (b *BaseAggregate) setVersion(v Version)     { b.version = v }
func (b *BaseAggregate) GetSeq() uint64           { return b.seq }
func (b *BaseAggregate) setSeq(s uint64)          { b.seq = s }
func (b *BaseAggregate) IsNew() bool              { return b.version == 0 }
func (b *BaseAggregate) HasUncommitted() bool     { return len(b.uncommitted) > 0 }
func (b *BaseAggregate) Raise(event any)          { b.uncommitted = append(b.uncommitted, event) }
func (b *BaseAggregate) ClearUncommitted()        { b.uncommitted = nil }
func (b *BaseAggregate) Uncommitted() []any {
	out := make([]any, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

// === Helpers ===

type raiseApplier interface {
	Raise(event any)
	Apply(event any) error
}

// RaiseAndApply validates the events, records them as uncommitted and applies
// them to mutate state.
func RaiseAndApply(a raiseApplier, events ...any) (err error) {
	if len(events) == 0 {
		return
	}

	for _, e := range events {
		if ev, ok := e.(interface{ Validate() error }); ok {
			err = ev.Validate()
			if err != nil {
				return fmt.Errorf("invalid event %T: %w", ev, err)
			}
		}
	}

	for _, e := range events {
		a.Raise(e)
		err = a.Apply(e)
		if err != nil {
			return
		}
	}
	return
}

// LoadFromHistory folds persisted events into agg in ascending version order.
// It never records uncommitted events. The first envelope must directly follow
// the aggregate's current version.
func LoadFromHistory(agg Aggregate, decoder Decoder, history []Envelope) error {
	for _, e := range history {
		expectVersion := agg.GetVersion() + 1
		if e.Version != expectVersion {
			return fmt.Errorf("%w: expect version %d, got %d (agg_type=%s agg_id=%s)",
				ErrEventOutOfOrder, expectVersion, e.Version, agg.GetAggType(), agg.GetID())
		}

		evt, err := decoder.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return fmt.Errorf("failed to apply %s v%d: %w", e.Type, e.Version, err)
		}

		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
	}
	return nil
}
