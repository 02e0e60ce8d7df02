package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	Entry
	expiresAt time.Time
}

type MemStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]memEntry{}, now: time.Now}
}

func (m *MemStore) Put(_ context.Context, key string, entry Entry, opts PutOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	e := memEntry{Entry: Entry{Data: append([]byte(nil), entry.Data...), Meta: entry.Meta}}
	if opts.TTL > 0 {
		e.expiresAt = m.now().Add(opts.TTL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = e
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return Entry{}, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return Entry{}, ErrNotFound
	}
	return e.Entry, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

var _ Store = (*MemStore)(nil)
