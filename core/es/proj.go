package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

type (
	// Projection builds a read model from persisted events. Apply runs inside
	// the transaction that also records the event as processed, so it must
	// only write through tx.
	Projection[TX any] interface {
		Name() string
		Apply(ctx context.Context, tx TX, env Envelope, event any) error
	}

	// AggregateFilter is implemented by projections that only care about some
	// aggregate types. Other events are skipped without touching the store.
	AggregateFilter interface {
		AggregateTypes() []string
	}

	// ProjectionTx is one unit of work of a ProjectionStore. Read-model writes
	// done through Tx() commit or roll back together with the markers.
	ProjectionTx[TX any] interface {
		Tx() TX
		IsProcessed(ctx context.Context, projector, eventID string) (bool, error)
		MarkProcessed(ctx context.Context, projector string, env Envelope) error
		StreamVersion(ctx context.Context, projector, tenantID, streamID string) (Version, error)
		SetStreamVersion(ctx context.Context, projector, tenantID, streamID string, v Version) error
	}

	ProjectionStore[TX any] interface {
		// RunInTx commits when fn returns nil and rolls back otherwise.
		RunInTx(ctx context.Context, fn func(ctx context.Context, tx ProjectionTx[TX]) error) error
	}
)

type (
	projectorOpts struct {
		log     *slog.Logger
		metrics ESMetrics
	}
	ProjectorOption interface{ applyToProjector(*projectorOpts) }
)

func (o LogOption) applyToProjector(opts *projectorOpts) { opts.log = logOrDefault(o.l) }

// Projector applies each event at most once to a projection. It keeps a
// processed marker per event id and the last applied version per stream;
// events that would skip a version are rejected with *OutOfOrderError so the
// delivery mechanism redelivers them later.
type Projector[TX any] struct {
	name       string
	projection Projection[TX]
	store      ProjectionStore[TX]
	decoder    Decoder
	aggTypes   []string
	log        *slog.Logger
	metrics    ESMetrics
}

func NewProjector[TX any](
	projection Projection[TX],
	store ProjectionStore[TX],
	decoder Decoder,
	opts ...ProjectorOption,
) (*Projector[TX], error) {
	if projection == nil {
		return nil, errors.New("projection is required")
	}
	if store == nil {
		return nil, errors.New("projection store is required")
	}
	if decoder == nil {
		return nil, errors.New("decoder is required")
	}
	name := projection.Name()
	if name == "" {
		return nil, errors.New("projection name is required")
	}

	options := projectorOpts{log: slog.Default(), metrics: NopESMetrics()}
	for _, opt := range opts {
		opt.applyToProjector(&options)
	}

	p := &Projector[TX]{
		name:       name,
		projection: projection,
		store:      store,
		decoder:    decoder,
		log:        options.log.With(slog.String("projector", name)),
		metrics:    options.metrics,
	}
	if f, ok := projection.(AggregateFilter); ok {
		p.aggTypes = f.AggregateTypes()
	}
	return p, nil
}

func (p *Projector[TX]) Name() string { return p.name }

func (p *Projector[TX]) handles(env Envelope) bool {
	return len(p.aggTypes) == 0 || slices.Contains(p.aggTypes, env.AggregateType)
}

// Handle lets a Projector subscribe to a Tailer.
func (p *Projector[TX]) Handle(msgCtx MsgCtx) error {
	return p.Project(msgCtx.Context(), msgCtx.Envelope())
}

// Project applies env to the projection unless it was applied before.
func (p *Projector[TX]) Project(ctx context.Context, env Envelope) (err error) {
	if env.ID == "" {
		return errors.New("event id is empty")
	}
	if env.Version == 0 {
		return fmt.Errorf("event %s has no stream version", env.ID)
	}
	if !p.handles(env) {
		p.metrics.ProjectorEvent(p.name, env.Type, OutcomeSkipped)
		return nil
	}

	defer p.metrics.ProjectorEventDuration(p.name).ObserveDuration()

	outcome := OutcomeApplied
	err = p.store.RunInTx(ctx, func(ctx context.Context, tx ProjectionTx[TX]) error {
		outcome = OutcomeApplied

		done, err := tx.IsProcessed(ctx, p.name, env.ID)
		if err != nil {
			return err
		}
		if done {
			outcome = OutcomeSkipped
			return nil
		}

		last, err := tx.StreamVersion(ctx, p.name, env.TenantID, env.StreamID)
		if err != nil {
			return err
		}
		switch {
		case env.Version <= last:
			outcome = OutcomeSkipped
			return tx.MarkProcessed(ctx, p.name, env)
		case env.Version > last+1:
			return &OutOfOrderError{
				Projector: p.name,
				TenantID:  env.TenantID,
				StreamID:  env.StreamID,
				EventID:   env.ID,
				Expected:  last + 1,
				Got:       env.Version,
			}
		}

		event, err := p.decoder.Decode(env)
		if err != nil {
			return err
		}
		if err := p.projection.Apply(ctx, tx.Tx(), env, event); err != nil {
			return fmt.Errorf("projection %s failed on %s: %w", p.name, env.Type, err)
		}
		if err := tx.MarkProcessed(ctx, p.name, env); err != nil {
			return err
		}
		return tx.SetStreamVersion(ctx, p.name, env.TenantID, env.StreamID, env.Version)
	})
	if err != nil {
		outcome = OutcomeFailed
	}
	p.metrics.ProjectorEvent(p.name, env.Type, outcome)

	switch outcome {
	case OutcomeSkipped:
		p.log.Debug("already processed", env.logAttrs())
	case OutcomeApplied:
		p.log.Debug("applied", env.logAttrs())
	}
	return err
}
