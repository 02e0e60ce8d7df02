// Package es is a multi-tenant event sourcing core.
//
// # Event store
//
// An [EventStore] is an append-only log partitioned by tenant. Every event
// belongs to one stream (aggregate type + id) of one tenant and carries a
// gapless per-stream [Version] and a global sequence number. Append checks
// the expected version and fails with [*ConcurrencyError] when another writer
// got there first; pass [AnyVersion] to skip the check. Use
// [NewInMemoryStore] for tests; adapters/sqlstore persists to Postgres or
// SQLite.
//
// # Aggregates and repository
//
// Aggregates embed [BaseAggregate] and change state only by raising events:
//
//	type Ticket struct {
//	    es.BaseAggregate
//	    Title string
//	}
//
//	func (t *Ticket) Rename(title string) error {
//	    return es.RaiseAndApply(t, &TicketRenamed{Title: title})
//	}
//
// The [Repository] rebuilds aggregates by replaying their stream, optionally
// starting from a snapshot, and saves uncommitted events with optimistic
// concurrency. Committed events are handed to an [EventPublisher]; publish
// failures never undo a save.
//
//	repo := es.NewTypedRepository[*Ticket](store, registry, es.WithSnapshotter(snaps))
//	t, err := repo.GetByID(ctx, "acme", "t-1", es.WithSnapshot(true))
//	_ = t.Rename("printer on fire")
//	err = repo.Save(ctx, "acme", t)
//
// [TypedRepository.WithTransaction] serializes commands per aggregate and
// retries them on conflicts.
//
// # Events
//
// Events are registered by type tag in an [EventRegistry]. A [Serializer]
// turns events into payloads and back; unknown tags fail with
// [*UnknownEventTypeError], malformed payloads with [*SerializationError].
//
// # Projections
//
// A [Projector] applies events to a [Projection] at most once: the read-model
// write, the processed marker and the per-stream version are committed in one
// [ProjectionStore] transaction. Events that arrive ahead of their predecessor
// are rejected with [*OutOfOrderError]. A [Tailer] feeds projectors from the
// global log and keeps a cursor per subscriber.
package es
