package es

import (
	"log/slog"

	"github.com/google/uuid"
)

// IDGenerator is a function that generates unique IDs for events.
type IDGenerator func() string

// DefaultIDGenerator returns random UUIDs (v4).
func DefaultIDGenerator() IDGenerator {
	return func() string { return uuid.NewString() }
}

// DefaultMaxRetries bounds the reload-and-retry loop of WithTransaction.
const DefaultMaxRetries = 3

type (
	repoOpts struct {
		log           *slog.Logger
		snapshotter   Snapshotter
		publisher     EventPublisher
		serializer    Serializer
		saveOpts      []SaveOption
		loadOpts      []LoadOption
		idGenerator   IDGenerator
		clock         Clock
		metrics       ESMetrics
		snapshotEvery uint64
	}

	repoSaveOptions struct {
		snapshot bool
		metadata *Metadata
	}

	repoLoadOptions struct {
		snapshot bool
	}

	repoWithTransactionOpts struct {
		create     bool
		maxRetries int
		loadOpts   []LoadOption
		saveOpts   []SaveOption
	}
)

type (
	RepositoryOption      interface{ applyToRepository(*repoOpts) }
	RepoCreateOption      valueOption[bool]
	RepoMaxRetriesOption  valueOption[int]
	RepoSerializerOption  valueOption[Serializer]
	SnapshotEveryOption   valueOption[uint64]
	MetadataOption        valueOption[*Metadata]
	SaveOptsOption        MultiOption[SaveOption]
	LoadOptsOption        MultiOption[LoadOption]
	RepoIDGeneratorOption valueOption[IDGenerator]
)

type (
	SaveOption            interface{ applyToSaveOptions(*repoSaveOptions) }
	LoadOption            interface{ applyToLoadOptions(*repoLoadOptions) }
	WithTransactionOption interface {
		applyToWithTransactionOptions(*repoWithTransactionOpts)
	}
)

// WithCreate lets WithTransaction run on an aggregate that has no events yet.
func WithCreate() RepoCreateOption { return RepoCreateOption{v: true} }

func WithMaxRetries(n int) RepoMaxRetriesOption { return RepoMaxRetriesOption{v: n} }

// WithIDGenerator sets a custom ID generator for event envelope IDs.
func WithIDGenerator(gen IDGenerator) RepoIDGeneratorOption {
	return RepoIDGeneratorOption{v: gen}
}

func WithSerializer(s Serializer) RepoSerializerOption { return RepoSerializerOption{v: s} }

// WithSnapshotEvery snapshots an aggregate on save whenever its version
// crosses a multiple of n.
func WithSnapshotEvery(n uint64) SnapshotEveryOption { return SnapshotEveryOption{v: n} }

// WithMetadata attaches correlation, causation and actor data to every
// event of one save.
func WithMetadata(md Metadata) MetadataOption { return MetadataOption{v: &md} }

func WithSaveOpts(opts ...SaveOption) SaveOptsOption { return SaveOptsOption{opts: opts} }
func WithLoadOpts(opts ...LoadOption) LoadOptsOption { return LoadOptsOption{opts: opts} }

// === repo ==

func (o LogOption) applyToRepository(options *repoOpts)             { options.log = logOrDefault(o.l) }
func (o ClockOption) applyToRepository(options *repoOpts)           { options.clock = o.v }
func (o SnapshotterOption) applyToRepository(options *repoOpts)     { options.snapshotter = o.v }
func (o PublisherOption) applyToRepository(options *repoOpts)       { options.publisher = o.v }
func (o RepoSerializerOption) applyToRepository(options *repoOpts)  { options.serializer = o.v }
func (o RepoIDGeneratorOption) applyToRepository(options *repoOpts) { options.idGenerator = o.v }
func (o SnapshotEveryOption) applyToRepository(options *repoOpts)   { options.snapshotEvery = o.v }
func (o SaveOptsOption) applyToRepository(options *repoOpts) {
	options.saveOpts = append(options.saveOpts, o.opts...)
}
func (o LoadOptsOption) applyToRepository(options *repoOpts) {
	options.loadOpts = append(options.loadOpts, o.opts...)
}

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	var options = repoOpts{
		log:         slog.Default(),
		publisher:   NopPublisher(),
		idGenerator: DefaultIDGenerator(),
		clock:       DefaultClock(),
		metrics:     NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	if options.publisher == nil {
		options.publisher = NopPublisher()
	}
	if options.clock == nil {
		options.clock = DefaultClock()
	}
	if options.idGenerator == nil {
		options.idGenerator = DefaultIDGenerator()
	}
	return options
}

// === save ==

func (o SnapshotOption) applyToSaveOptions(options *repoSaveOptions) { options.snapshot = o.v }
func (o MetadataOption) applyToSaveOptions(options *repoSaveOptions) { options.metadata = o.v }
func (o SaveOptsOption) applyToSaveOptions(options *repoSaveOptions) {
	for _, opt := range o.opts {
		opt.applyToSaveOptions(options)
	}
}

func newSaveOptions(opts ...SaveOption) repoSaveOptions {
	options := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSaveOptions(&options)
	}
	return options
}

// === load ==

func (o SnapshotOption) applyToLoadOptions(options *repoLoadOptions) { options.snapshot = o.v }
func (o LoadOptsOption) applyToLoadOptions(options *repoLoadOptions) {
	for _, opt := range o.opts {
		opt.applyToLoadOptions(options)
	}
}

func newLoadOptions(opts ...LoadOption) repoLoadOptions {
	options := repoLoadOptions{}
	for _, opt := range opts {
		opt.applyToLoadOptions(&options)
	}
	return options
}

// === withTransaction ==

func (o SaveOptsOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.saveOpts = append(options.saveOpts, o.opts...)
}
func (o LoadOptsOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.loadOpts = append(options.loadOpts, o.opts...)
}
func (o SnapshotOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.saveOpts = append(options.saveOpts, o)
	options.loadOpts = append(options.loadOpts, o)
}
func (o MetadataOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.saveOpts = append(options.saveOpts, o)
}
func (o RepoCreateOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.create = o.v
}
func (o RepoMaxRetriesOption) applyToWithTransactionOptions(options *repoWithTransactionOpts) {
	options.maxRetries = o.v
}

func newWithTransactionOptions(opts ...WithTransactionOption) repoWithTransactionOpts {
	options := repoWithTransactionOpts{maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt.applyToWithTransactionOptions(&options)
	}
	if options.maxRetries < 0 {
		options.maxRetries = 0
	}
	return options
}
