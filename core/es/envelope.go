package es

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Metadata is the optional side channel persisted with every event.
type Metadata struct {
	CorrelationID string            `json:"correlation_id,omitempty"`
	CausationID   string            `json:"causation_id,omitempty"`
	ActorID       string            `json:"actor_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (m *Metadata) IsZero() bool {
	return m == nil || (m.CorrelationID == "" && m.CausationID == "" && m.ActorID == "" && len(m.Extra) == 0)
}

// Envelope wraps an event with metadata for persistence and routing.
// It is the unit of storage in the EventStore and contains all information
// needed to reconstruct and route events during replay or consumption.
type Envelope struct {
	// ID is the unique identifier of this event.
	ID string `json:"id"`
	// Seq is the global sequence number assigned by the store.
	// This provides total ordering across all events in the store.
	Seq uint64 `json:"seq"`
	// Version is the per-aggregate stream version (1, 2, 3, ...).
	// Used for optimistic concurrency control.
	Version Version `json:"version"`
	// TenantID is the partition key. Every stream belongs to exactly one tenant.
	TenantID string `json:"tenant_id"`
	// StreamID is AggregateType + "-" + AggregateID.
	StreamID string `json:"stream_id"`
	// AggregateType identifies the type of aggregate this event belongs to.
	AggregateType string `json:"aggregate"`
	// AggregateID identifies the specific aggregate instance.
	AggregateID string `json:"aggregate_id"`
	// Type is the event type name for deserialization routing.
	Type string `json:"type"`
	// OccurredAt is the wall clock time of the append. Informational only.
	OccurredAt time.Time `json:"occurred_at"`
	// Data contains the encoded event payload.
	Data json.RawMessage `json:"data"`
	// Metadata holds correlation, causation and actor information.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// StreamID derives the stream identifier of an aggregate instance.
func StreamID(aggType, aggID string) string { return aggType + "-" + aggID }

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("envelope aggregate id is empty")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	return nil
}

func (e Envelope) logAttrs() slog.Attr {
	return slog.Group(
		"event",
		slog.String("id", e.ID),
		slog.Uint64("seq", e.Seq),
		e.Version.SlogAttr(),
		slog.String("type", e.Type),
		slog.String("tenant", e.TenantID),
		slog.String("aggregate_type", e.AggregateType),
		slog.String("aggregate_id", e.AggregateID),
	)
}

type Decoder interface{ Decode(e Envelope) (any, error) }
