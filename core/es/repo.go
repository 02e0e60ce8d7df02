package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/Broccode/acci-eaf-sub010/core/perkey"
)

type Repository interface {
	// Load folds the stream of agg into agg. An empty stream leaves agg at
	// version 0 and is not an error.
	Load(ctx context.Context, tenantID string, agg Aggregate, opts ...LoadOption) error
	// Save appends the uncommitted events of agg expecting agg's version.
	Save(ctx context.Context, tenantID string, agg Aggregate, opts ...SaveOption) error
	CreateSnapshot(ctx context.Context, tenantID string, agg Aggregate) (*Snapshot, error)
}

// repository rehydrates aggregates and persists new events with optimistic concurrency.
type repository struct {
	log           *slog.Logger
	store         EventStore
	serializer    Serializer
	snapshotter   Snapshotter
	publisher     EventPublisher
	idGenerator   IDGenerator
	clock         Clock
	metrics       ESMetrics
	snapshotEvery uint64
	saveOpts      []SaveOption
	loadOpts      []LoadOption
}

func NewRepository(
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := newRepoOpts(opts...)
	if options.serializer == nil {
		options.serializer = NewJSONSerializer(registry)
	}

	return &repository{
		log:           options.log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:         store,
		serializer:    options.serializer,
		snapshotter:   options.snapshotter,
		publisher:     options.publisher,
		idGenerator:   options.idGenerator,
		clock:         options.clock,
		metrics:       options.metrics,
		snapshotEvery: options.snapshotEvery,
		saveOpts:      options.saveOpts,
		loadOpts:      options.loadOpts,
	}
}

func (r *repository) Decode(e Envelope) (any, error) {
	ev, err := r.serializer.Deserialize(e.Type, e.Data)
	if err != nil {
		var se *SerializationError
		if errors.As(err, &se) && se.EventID == "" {
			se.EventID = e.ID
		}
		return nil, err
	}
	return ev, nil
}

func bindTenant(tenantID string, agg Aggregate) error {
	if err := ValidateStreamKey(tenantID, agg.GetAggType(), agg.GetID()); err != nil {
		return err
	}
	if cur := agg.GetTenantID(); cur != "" && cur != tenantID {
		return fmt.Errorf("aggregate belongs to tenant %q, not %q", cur, tenantID)
	}
	agg.setTenantID(tenantID)
	return nil
}

func aggLogAttrs(agg Aggregate) slog.Attr {
	return slog.Group(
		"agg",
		slog.String("tenant", agg.GetTenantID()),
		slog.String("type", agg.GetAggType()),
		slog.String("id", agg.GetID()),
		slog.Uint64("seq", agg.GetSeq()),
		agg.GetVersion().SlogAttr(),
	)
}

func (r *repository) Load(ctx context.Context, tenantID string, agg Aggregate, opts ...LoadOption) (err error) {
	if err = bindTenant(tenantID, agg); err != nil {
		return err
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events (dirty=true)")
	}
	aggType := agg.GetAggType()
	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	loadOptions := newLoadOptions(append(r.loadOpts, opts...)...)

	if loadOptions.snapshot && agg.GetVersion() == 0 {
		restored, err := r.loadFromSnapshot(ctx, agg)
		if err != nil {
			return err
		}
		if restored {
			return nil
		}
	}

	if err := r.replay(ctx, agg); err != nil {
		return err
	}

	r.log.Debug("loaded", aggLogAttrs(agg), slog.Bool("snapshot", false))
	return nil
}

// loadFromSnapshot restores agg from its latest snapshot and replays the tail.
// It returns false when the caller has to fall back to a full replay; agg is
// back in its zero state in that case.
func (r *repository) loadFromSnapshot(ctx context.Context, agg Aggregate) (bool, error) {
	aggType := agg.GetAggType()
	log := r.log.With(aggLogAttrs(agg))

	fallback := func(reason string, err error) {
		r.metrics.SnapshotFallback(aggType, reason)
		level := slog.LevelWarn
		if reason == "missing" {
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "snapshot unusable, replaying full stream",
			slog.String("reason", reason), slog.Any("error", err))
		resetAggregate(agg)
	}

	if r.snapshotter == nil {
		fallback("unconfigured", ErrSnapshotterUnconfigured)
		return false, nil
	}

	timer := r.metrics.SnapshotLoadDuration(aggType)
	ss, err := r.snapshotter.LoadSnapshot(ctx, agg.GetTenantID(), aggType, agg.GetID())
	timer.ObserveDuration()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, ErrSnapshotNotFound) {
			fallback("missing", err)
		} else {
			fallback("load", err)
		}
		return false, nil
	}

	if err := RestoreSnapshot(agg, ss); err != nil {
		fallback("restore", err)
		return false, nil
	}

	tail, err := r.store.Load(ctx, agg.GetTenantID(), aggType, agg.GetID(), WithStartAtVersion(agg.GetVersion()+1))
	if err != nil {
		return false, err
	}
	if len(tail) == 0 {
		cur, err := r.store.CurrentVersion(ctx, agg.GetTenantID(), aggType, agg.GetID())
		if err != nil {
			return false, err
		}
		if cur < ss.ObjVersion {
			fallback("ahead", fmt.Errorf("snapshot version %d ahead of stream version %d", ss.ObjVersion, cur))
			return false, nil
		}
	}
	if err := LoadFromHistory(agg, r, tail); err != nil {
		fallback("tail", err)
		return false, nil
	}

	log.Debug("loaded", slog.Bool("snapshot", true), ss.ObjVersion.SlogAttrWithKey("snapshot_version"), slog.Int("tail", len(tail)))
	return true, nil
}

func (r *repository) replay(ctx context.Context, agg Aggregate) error {
	loaded, err := r.store.Load(
		ctx,
		agg.GetTenantID(),
		agg.GetAggType(),
		agg.GetID(),
		WithStartAtVersion(agg.GetVersion()+1),
	)
	if err != nil {
		return err
	}
	return LoadFromHistory(agg, r, loaded)
}

func (r *repository) Save(ctx context.Context, tenantID string, agg Aggregate, opts ...SaveOption) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	if err := bindTenant(tenantID, agg); err != nil {
		return err
	}

	var (
		aggType       = agg.GetAggType()
		aggID         = agg.GetID()
		saveOptions   = newSaveOptions(append(r.saveOpts, opts...)...)
		expectVersion = agg.GetVersion()
		now           = r.clock()
		newEnvs       = make([]Envelope, 0, len(uncommitted))
	)
	defer r.metrics.RepoSaveDuration(aggType).ObserveDuration()

	for _, ev := range uncommitted {
		eventType, data, err := r.serializer.Serialize(ev)
		if err != nil {
			return err
		}

		env := Envelope{
			ID:            r.idGenerator(),
			TenantID:      tenantID,
			StreamID:      StreamID(aggType, aggID),
			Type:          eventType,
			AggregateID:   aggID,
			AggregateType: aggType,
			OccurredAt:    now,
			Data:          data,
		}
		if !saveOptions.metadata.IsZero() {
			md := *saveOptions.metadata
			env.Metadata = &md
		}
		newEnvs = append(newEnvs, env)
	}

	res, err := r.store.Append(ctx, tenantID, aggType, aggID, expectVersion, newEnvs)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save tenant=%s agg_type=%s agg_id=%s: %w", tenantID, aggType, aggID, err)
	}
	if res == nil || len(res.Versions) != len(newEnvs) {
		return errors.New("append returned an incomplete result")
	}

	for i := range newEnvs {
		newEnvs[i].Version = res.Versions[i]
		newEnvs[i].Seq = res.Seqs[i]
	}

	agg.setVersion(res.LastVersion)
	agg.setSeq(res.LastSeq)
	agg.ClearUncommitted()

	r.log.Debug(
		"saved",
		aggLogAttrs(agg),
		slog.Int("num_events", len(newEnvs)),
	)

	if saveOptions.snapshot || r.snapshotDue(expectVersion, res.LastVersion) {
		if _, err := r.CreateSnapshot(ctx, tenantID, agg); err != nil {
			r.log.Warn("snapshot failed", aggLogAttrs(agg), slog.Any("error", err))
		}
	}

	r.publish(ctx, tenantID, newEnvs)
	return nil
}

func (r *repository) snapshotDue(from, to Version) bool {
	if r.snapshotEvery == 0 {
		return false
	}
	return from.Uint64()/r.snapshotEvery != to.Uint64()/r.snapshotEvery
}

func (r *repository) publish(ctx context.Context, tenantID string, envs []Envelope) {
	for _, env := range envs {
		if err := r.publisher.Publish(ctx, tenantID, env); err != nil {
			r.metrics.PublishFailed(env.AggregateType)
			r.log.Warn("publish failed", env.logAttrs(), slog.Any("error", err))
		}
	}
}

func (r *repository) CreateSnapshot(ctx context.Context, tenantID string, agg Aggregate) (ss *Snapshot, err error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	if err = bindTenant(tenantID, agg); err != nil {
		return nil, err
	}
	defer r.metrics.SnapshotSaveDuration(agg.GetAggType()).ObserveDuration()

	ss, err = CreateSnapshot(agg)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	err = r.snapshotter.SaveSnapshot(ctx, ss)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return
}

var (
	_ Repository = &repository{}
	_ Decoder    = &repository{}
)

// === TypedRepository ===

type (
	TypedRepository[T Aggregate] interface {
		GetAggType() string
		New() T
		NewWithID(id string) T
		Load(ctx context.Context, tenantID string, a T, opts ...LoadOption) error
		// GetByID loads an existing aggregate and fails with ErrAggregateNotFound
		// when the stream is empty.
		GetByID(ctx context.Context, tenantID, aggID string, opts ...LoadOption) (T, error)
		// GetOrNew loads the aggregate or returns a fresh one bound to aggID.
		GetOrNew(ctx context.Context, tenantID, aggID string, opts ...LoadOption) (T, error)
		Save(ctx context.Context, tenantID string, agg T, opts ...SaveOption) error
		// WithTransaction runs fn against a freshly loaded aggregate and saves
		// the result. Calls for the same aggregate are serialized in-process; a
		// concurrency conflict reloads and reruns fn.
		WithTransaction(ctx context.Context, tenantID, aggID string, fn func(T) error, opts ...WithTransactionOption) (T, error)
	}
)

type typedRepo[T Aggregate] struct {
	r     Repository
	log   *slog.Logger
	sched *perkey.Scheduler[string]
}

func (t *typedRepo[T]) New() T { return t.NewWithID("") }

func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Pointer {
		a = reflect.New(rt.Elem()).Interface().(T)
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) Load(ctx context.Context, tenantID string, a T, opts ...LoadOption) error {
	return t.r.Load(ctx, tenantID, a, opts...)
}

func (t *typedRepo[T]) GetOrNew(ctx context.Context, tenantID, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = t.r.Load(ctx, tenantID, a, opts...); err != nil {
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) GetByID(ctx context.Context, tenantID, aggID string, opts ...LoadOption) (a T, err error) {
	a, err = t.GetOrNew(ctx, tenantID, aggID, opts...)
	if err != nil {
		return
	}
	if a.GetVersion() == 0 {
		return a, fmt.Errorf("%w: tenant=%s agg_type=%s agg_id=%s", ErrAggregateNotFound, tenantID, a.GetAggType(), aggID)
	}
	return a, nil
}

func (t *typedRepo[T]) Save(ctx context.Context, tenantID string, agg T, opts ...SaveOption) error {
	return t.r.Save(ctx, tenantID, agg, opts...)
}

type txResult[T any] struct {
	agg T
	err error
}

// WithTransaction runs fn against the latest state of the aggregate and saves
// it, retrying on concurrency conflicts. When ctx ends before the command
// finished, the zero T and the context error are returned; the command may
// still complete in the background.
func (t *typedRepo[T]) WithTransaction(
	ctx context.Context,
	tenantID, aggID string,
	fn func(T) error,
	opts ...WithTransactionOption,
) (T, error) {
	options := newWithTransactionOptions(opts...)
	key := tenantID + "/" + aggID
	done := make(chan txResult[T], 1)

	err := t.sched.DoContext(ctx, key, func() error {
		agg, err := t.runTransaction(ctx, tenantID, aggID, fn, options)
		done <- txResult[T]{agg: agg, err: err}
		return err
	})

	select {
	case res := <-done:
		return res.agg, res.err
	default:
		var zero T
		return zero, err
	}
}

func (t *typedRepo[T]) runTransaction(
	ctx context.Context,
	tenantID, aggID string,
	fn func(T) error,
	options repoWithTransactionOpts,
) (T, error) {
	for attempt := 0; ; attempt++ {
		a, err := t.GetOrNew(ctx, tenantID, aggID, options.loadOpts...)
		if err != nil {
			return a, err
		}
		if a.GetVersion() == 0 && !options.create {
			return a, fmt.Errorf("%w: tenant=%s agg_id=%s", ErrAggregateNotFound, tenantID, aggID)
		}
		if err = fn(a); err != nil {
			return a, err
		}
		err = t.Save(ctx, tenantID, a, options.saveOpts...)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= options.maxRetries {
			return a, err
		}
		t.log.Debug(
			"conflict, retrying",
			slog.String("tenant", tenantID),
			slog.String("id", aggID),
			slog.Int("attempt", attempt+1),
		)
	}
}

func (t *typedRepo[T]) GetAggType() string {
	a := t.New()
	return a.GetAggType()
}

func NewTypedRepository[T Aggregate](s EventStore, reg *EventRegistry, opts ...RepositoryOption) TypedRepository[T] {
	options := newRepoOpts(opts...)
	return NewTypedRepositoryFrom[T](options.log, NewRepository(s, reg, opts...))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{
		r:     r,
		log:   logOrDefault(log).With(slog.String("repo", fmt.Sprintf("%T", *new(T)))),
		sched: perkey.New[string](),
	}
}
