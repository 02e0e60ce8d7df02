package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Env wires a store, registry, repository and an optional tailer with shared
// logging and metrics.
type Env struct {
	id           string
	log          *slog.Logger
	store        EventStore
	snapshotter  Snapshotter
	registry     *EventRegistry
	serializer   *JSONSerializer
	repo         Repository
	tailer       *Tailer
	cancelCtx    context.CancelFunc
	shutdownOnce sync.Once
}

func (e *Env) Repository() Repository      { return e.repo }
func (e *Env) Store() EventStore           { return e.store }
func (e *Env) Snapshotter() Snapshotter    { return e.snapshotter }
func (e *Env) Registry() *EventRegistry    { return e.registry }
func (e *Env) Serializer() *JSONSerializer { return e.serializer }
func (e *Env) Log() *slog.Logger           { return e.log }

// Tailer is nil when the env has no subscribers.
func (e *Env) Tailer() *Tailer { return e.tailer }

func NewEnv(opts ...EnvOption) (e *Env, err error) {
	var (
		id      = gonanoid.Must(6)
		options = newEnvOptions(opts...)
		log     = options.log.With(slog.String("env", id))
	)

	e = &Env{
		id:          id,
		log:         log,
		store:       options.store,
		snapshotter: options.snapshotter,
		registry:    NewRegistry(),
		cancelCtx:   func() {},
	}
	e.serializer = NewJSONSerializer(e.registry)

	for _, agg := range options.aggregates {
		agg.Register(e.registry)
		log.Debug("registered aggregate", slog.String("type", agg.GetAggType()))
	}
	RegisterEvents(e.registry, options.events...)

	repoOpts := []RepositoryOption{
		WithLog(log),
		WithMetrics(options.metrics),
		WithPublisher(options.publisher),
		WithSerializer(e.serializer),
	}
	if options.snapshotter != nil {
		repoOpts = append(repoOpts, WithSnapshotter(options.snapshotter))
	}
	e.repo = NewRepository(e.store, e.registry, append(repoOpts, options.repoOpts...)...)

	if len(options.subscribers) > 0 {
		tailerOpts := append([]TailerOption{
			WithLog(log),
			WithMetrics(options.metrics),
			WithCursorStore(options.cursors),
		}, options.tailerOpts...)
		e.tailer, err = NewTailer(e.store, options.subscribers, tailerOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create tailer: %w", err)
		}
	}

	return e, nil
}

// Start runs the tailer in the background, if any.
func (e *Env) Start(ctx context.Context) {
	if e.tailer == nil {
		return
	}
	ctx, e.cancelCtx = context.WithCancel(ctx)
	e.tailer.Start(ctx)
}

func (e *Env) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.cancelCtx()
		if e.tailer != nil {
			e.tailer.Stop()
		}
		e.log.Info("env shutdown")
	})
}

// Append encodes events and appends them to one stream, bypassing aggregates.
func (e *Env) Append(
	ctx context.Context,
	tenantID string,
	expect Version,
	aggType string,
	aggID string,
	events ...any,
) (*StoreAppendResult, error) {
	envelopes := make([]Envelope, 0, len(events))
	for _, ev := range events {
		eventType, data, err := e.serializer.Serialize(ev)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, Envelope{
			ID:            DefaultIDGenerator()(),
			Type:          eventType,
			AggregateID:   aggID,
			AggregateType: aggType,
			Data:          data,
			OccurredAt:    DefaultClock()(),
		})
	}
	return e.store.Append(ctx, tenantID, aggType, aggID, expect, envelopes)
}
