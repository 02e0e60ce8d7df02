package es

import (
	"context"
	"maps"
	"sort"
	"sync"
)

type memStreamVersionKey struct {
	projector string
	tenantID  string
	streamID  string
}

type memProcessedKey struct {
	projector string
	eventID   string
}

// InMemoryProjectionStore keeps read models, processed markers and stream
// versions in memory. Transactions are serialized and their writes are staged
// until fn succeeds.
type InMemoryProjectionStore struct {
	mu        sync.Mutex
	tables    map[string]map[string]any
	processed map[memProcessedKey]struct{}
	versions  map[memStreamVersionKey]Version
}

func NewInMemoryProjectionStore() *InMemoryProjectionStore {
	return &InMemoryProjectionStore{
		tables:    map[string]map[string]any{},
		processed: map[memProcessedKey]struct{}{},
		versions:  map[memStreamVersionKey]Version{},
	}
}

// MemTx is the read-model handle passed to in-memory projections.
type MemTx struct {
	s         *InMemoryProjectionStore
	tables    map[string]map[string]any
	deleted   map[string]map[string]struct{}
	processed map[memProcessedKey]struct{}
	versions  map[memStreamVersionKey]Version
}

func (t *MemTx) Get(table, key string) (any, bool) {
	if _, gone := t.deleted[table][key]; gone {
		return nil, false
	}
	if v, ok := t.tables[table][key]; ok {
		return v, true
	}
	v, ok := t.s.tables[table][key]
	return v, ok
}

func (t *MemTx) Put(table, key string, value any) {
	if t.tables[table] == nil {
		t.tables[table] = map[string]any{}
	}
	t.tables[table][key] = value
	delete(t.deleted[table], key)
}

func (t *MemTx) Delete(table, key string) {
	delete(t.tables[table], key)
	if t.deleted[table] == nil {
		t.deleted[table] = map[string]struct{}{}
	}
	t.deleted[table][key] = struct{}{}
}

func (t *MemTx) commit() {
	s := t.s
	for table, rows := range t.tables {
		if s.tables[table] == nil {
			s.tables[table] = map[string]any{}
		}
		maps.Copy(s.tables[table], rows)
	}
	for table, keys := range t.deleted {
		for k := range keys {
			delete(s.tables[table], k)
		}
	}
	maps.Copy(s.processed, t.processed)
	maps.Copy(s.versions, t.versions)
}

type memProjectionTx struct{ tx *MemTx }

func (m memProjectionTx) Tx() *MemTx { return m.tx }

func (m memProjectionTx) IsProcessed(_ context.Context, projector, eventID string) (bool, error) {
	k := memProcessedKey{projector, eventID}
	if _, ok := m.tx.processed[k]; ok {
		return true, nil
	}
	_, ok := m.tx.s.processed[k]
	return ok, nil
}

func (m memProjectionTx) MarkProcessed(_ context.Context, projector string, env Envelope) error {
	m.tx.processed[memProcessedKey{projector, env.ID}] = struct{}{}
	return nil
}

func (m memProjectionTx) StreamVersion(_ context.Context, projector, tenantID, streamID string) (Version, error) {
	k := memStreamVersionKey{projector, tenantID, streamID}
	if v, ok := m.tx.versions[k]; ok {
		return v, nil
	}
	return m.tx.s.versions[k], nil
}

func (m memProjectionTx) SetStreamVersion(_ context.Context, projector, tenantID, streamID string, v Version) error {
	m.tx.versions[memStreamVersionKey{projector, tenantID, streamID}] = v
	return nil
}

func (s *InMemoryProjectionStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ProjectionTx[*MemTx]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemTx{
		s:         s,
		tables:    map[string]map[string]any{},
		deleted:   map[string]map[string]struct{}{},
		processed: map[memProcessedKey]struct{}{},
		versions:  map[memStreamVersionKey]Version{},
	}
	if err := fn(ctx, memProjectionTx{tx: tx}); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Get reads a committed read-model row.
func (s *InMemoryProjectionStore) Get(table, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tables[table][key]
	return v, ok
}

// Keys returns the committed keys of table in lexical order.
func (s *InMemoryProjectionStore) Keys(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables[table]))
	for k := range s.tables[table] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProcessedCount returns how many events projector has marked as processed.
func (s *InMemoryProjectionStore) ProcessedCount(projector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.processed {
		if k.projector == projector {
			n++
		}
	}
	return n
}

var _ ProjectionStore[*MemTx] = (*InMemoryProjectionStore)(nil)
