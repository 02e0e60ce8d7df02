package es

import (
	"log/slog"
)

type (
	envOptions struct {
		log         *slog.Logger
		store       EventStore
		snapshotter Snapshotter
		publisher   EventPublisher
		cursors     CursorStore
		metrics     ESMetrics
		aggregates  []Aggregate
		events      []func() any
		subscribers []Subscriber
		repoOpts    []RepositoryOption
		tailerOpts  []TailerOption
	}

	EnvOption interface {
		applyToEnv(*envOptions)
	}

	StoreOption      valueOption[EventStore]
	AggregatesOption valueOption[[]Aggregate]
	EventsOption     valueOption[[]func() any]
	SubscriberOption valueOption[Subscriber]
	RepoOptsOption   MultiOption[RepositoryOption]
	TailerOptsOption MultiOption[TailerOption]
	EnvOptsOption    MultiOption[EnvOption]
)

func WithStore(s EventStore) StoreOption                    { return StoreOption{v: s} }
func WithAggregates(aggs ...Aggregate) AggregatesOption    { return AggregatesOption{v: aggs} }
func WithEvents(ctors ...func() any) EventsOption          { return EventsOption{v: ctors} }
func WithSubscriber(s Subscriber) SubscriberOption         { return SubscriberOption{v: s} }
func WithRepoOpts(opts ...RepositoryOption) RepoOptsOption { return RepoOptsOption{opts: opts} }
func WithTailerOpts(opts ...TailerOption) TailerOptsOption { return TailerOptsOption{opts: opts} }
func WithEnvOpts(opts ...EnvOption) EnvOptsOption          { return EnvOptsOption{opts: opts} }

func (o LogOption) applyToEnv(options *envOptions)         { options.log = logOrDefault(o.l) }
func (o StoreOption) applyToEnv(options *envOptions)       { options.store = o.v }
func (o SnapshotterOption) applyToEnv(options *envOptions) { options.snapshotter = o.v }
func (o PublisherOption) applyToEnv(options *envOptions)   { options.publisher = o.v }
func (o CursorStoreOption) applyToEnv(options *envOptions) { options.cursors = o.v }
func (o ESMetricsOption) applyToEnv(options *envOptions)   { options.metrics = o.get() }
func (o AggregatesOption) applyToEnv(options *envOptions) {
	options.aggregates = append(options.aggregates, o.v...)
}
func (o EventsOption) applyToEnv(options *envOptions) { options.events = append(options.events, o.v...) }
func (o SubscriberOption) applyToEnv(options *envOptions) {
	options.subscribers = append(options.subscribers, o.v)
}
func (o RepoOptsOption) applyToEnv(options *envOptions) {
	options.repoOpts = append(options.repoOpts, o.opts...)
}
func (o TailerOptsOption) applyToEnv(options *envOptions) {
	options.tailerOpts = append(options.tailerOpts, o.opts...)
}
func (o EnvOptsOption) applyToEnv(options *envOptions) {
	for _, opt := range o.opts {
		opt.applyToEnv(options)
	}
}

func newEnvOptions(opts ...EnvOption) envOptions {
	options := envOptions{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}
	if options.store == nil {
		options.store = NewInMemoryStore(WithLog(options.log), WithMetrics(options.metrics))
	}
	if options.cursors == nil {
		options.cursors = NewInMemoryCursorStore()
	}
	if options.publisher == nil {
		options.publisher = NopPublisher()
	}
	return options
}
