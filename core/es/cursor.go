package es

import (
	"context"
	"errors"
	"sync"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CursorStore persists the global sequence up to which a subscriber has
// handled events.
type CursorStore interface {
	// GetCursor returns ErrCheckpointNotFound for a subscriber without cursor.
	GetCursor(ctx context.Context, name string) (lastSeq uint64, err error)
	SetCursor(ctx context.Context, name string, lastSeq uint64) error
}

type CursorStoreOption valueOption[CursorStore]

func WithCursorStore(cs CursorStore) CursorStoreOption { return CursorStoreOption{v: cs} }

type InMemoryCursorStore struct {
	mu sync.RWMutex
	m  map[string]uint64
}

func NewInMemoryCursorStore() *InMemoryCursorStore {
	return &InMemoryCursorStore{m: map[string]uint64{}}
}

func (s *InMemoryCursorStore) GetCursor(_ context.Context, name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[name]
	if !ok {
		return 0, ErrCheckpointNotFound
	}
	return v, nil
}

func (s *InMemoryCursorStore) SetCursor(_ context.Context, name string, lastSeq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = lastSeq
	return nil
}

var _ CursorStore = (*InMemoryCursorStore)(nil)
