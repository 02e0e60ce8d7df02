package es

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

type memStreamKey struct {
	tenant   string
	streamID string
}

// InMemoryStore is a simple, correct (optimistic) store for tests/dev.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     uint64
	streams map[memStreamKey][]Envelope
	all     []Envelope
	metrics ESMetrics
}

func NewInMemoryStore(opts ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		log:     slog.Default(),
		streams: map[memStreamKey][]Envelope{},
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToInMemoryStore(s)
	}
	s.log = s.log.With(slog.String("store", "memory"))
	return s
}

type InMemoryStoreOption interface{ applyToInMemoryStore(*InMemoryStore) }

func (o LogOption) applyToInMemoryStore(s *InMemoryStore) { s.log = logOrDefault(o.l) }

func (s *InMemoryStore) CurrentVersion(_ context.Context, tenantID, aggType, aggID string) (Version, error) {
	if err := ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentVersionLocked(memStreamKey{tenantID, StreamID(aggType, aggID)}), nil
}

func (s *InMemoryStore) currentVersionLocked(sk memStreamKey) Version {
	cur := s.streams[sk]
	if len(cur) == 0 {
		return 0
	}
	return cur[len(cur)-1].Version
}

func (s *InMemoryStore) Load(
	_ context.Context,
	tenantID,
	aggType,
	aggID string,
	opts ...StoreLoadOption,
) ([]Envelope, error) {
	if err := ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return nil, err
	}
	defer s.metrics.StoreLoadDuration(aggType).ObserveDuration()

	startVersion := NewStoreLoadOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[memStreamKey{tenantID, StreamID(aggType, aggID)}]
	out := make([]Envelope, 0, len(events))
	for _, e := range events {
		if e.Version < startVersion {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) LoadAllSince(_ context.Context, afterSeq uint64, limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// all is ordered by Seq and Seq starts at 1 without gaps
	start := sort.Search(len(s.all), func(i int) bool { return s.all[i].Seq > afterSeq })
	end := min(start+limit, len(s.all))
	out := make([]Envelope, end-start)
	copy(out, s.all[start:end])
	return out, nil
}

func (s *InMemoryStore) Append(
	_ context.Context,
	tenantID string,
	aggType string,
	aggID string,
	expectVersion Version,
	events []Envelope,
) (*StoreAppendResult, error) {
	if err := ValidateStreamKey(tenantID, aggType, aggID); err != nil {
		return nil, err
	}
	defer s.metrics.StoreAppendDuration(aggType).ObserveDuration()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sk         = memStreamKey{tenantID, StreamID(aggType, aggID)}
		curVersion = s.currentVersionLocked(sk)
	)

	prepared, err := PrepareAppend(tenantID, aggType, aggID, expectVersion, curVersion, events)
	if err != nil {
		return nil, err
	}

	res := &StoreAppendResult{}
	for i := range prepared {
		s.seq++
		prepared[i].Seq = s.seq
		res.Seqs = append(res.Seqs, s.seq)
		res.Versions = append(res.Versions, prepared[i].Version)
	}
	res.LastSeq = s.seq
	res.LastVersion = prepared[len(prepared)-1].Version

	s.streams[sk] = append(s.streams[sk], prepared...)
	s.all = append(s.all, prepared...)
	s.metrics.EventsAppended(aggType, len(prepared))

	s.log.Debug(
		"append",
		slog.String("tenant", tenantID),
		slog.String("stream", sk.streamID),
		slog.Uint64("last_seq", res.LastSeq),
		res.LastVersion.SlogAttrWithKey("last_version"),
		slog.Int("num_events", len(prepared)),
	)

	return res, nil
}

var _ EventStore = (*InMemoryStore)(nil)
