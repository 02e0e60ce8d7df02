package es

import (
	"errors"
	"fmt"
)

var (
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrSerialization       = errors.New("event serialization failed")
	ErrEventOutOfOrder     = errors.New("event out of order")
	ErrTenantRequired      = errors.New("tenant id is required")
	ErrStoreNoEvents       = errors.New("no events to store")
)

// ErrInvalidAggregateType is returned for aggregate types containing the
// stream id separator, which would make StreamID ambiguous.
var ErrInvalidAggregateType = errors.New("aggregate type must not contain '-'")

// ConcurrencyError is returned by EventStore.Append when the expected version
// does not match the current version of the stream. It matches
// ErrConcurrencyConflict with errors.Is.
type ConcurrencyError struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	Expected      Version
	Actual        Version
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"%s: expected version %d, got %d (tenant=%s agg_type=%s agg_id=%s)",
		ErrConcurrencyConflict,
		e.Expected,
		e.Actual,
		e.TenantID,
		e.AggregateType,
		e.AggregateID,
	)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrencyConflict }

// UnknownEventTypeError is returned when no decoder is registered for a tag.
type UnknownEventTypeError struct {
	EventType string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownEventType, e.EventType)
}

func (e *UnknownEventTypeError) Unwrap() error { return ErrUnknownEventType }

// SerializationError reports an encode or decode failure of a known event type.
type SerializationError struct {
	Op        string // "encode" or "decode"
	EventType string
	EventID   string
	Err       error
}

func (e *SerializationError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrSerialization, e.Op, e.EventType)
	if e.EventID != "" {
		msg += " (event_id=" + e.EventID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SerializationError) Unwrap() []error { return []error{ErrSerialization, e.Err} }

// OutOfOrderError is returned by a Projector when an event arrives before its
// predecessor in the same stream has been applied.
type OutOfOrderError struct {
	Projector string
	TenantID  string
	StreamID  string
	EventID   string
	Expected  Version
	Got       Version
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf(
		"%s: projector=%s tenant=%s stream=%s event_id=%s expected version %d, got %d",
		ErrEventOutOfOrder,
		e.Projector,
		e.TenantID,
		e.StreamID,
		e.EventID,
		e.Expected,
		e.Got,
	)
}

func (e *OutOfOrderError) Unwrap() error { return ErrEventOutOfOrder }

// AsConcurrencyError extracts the conflict details from err, if any.
func AsConcurrencyError(err error) (*ConcurrencyError, bool) {
	var ce *ConcurrencyError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
