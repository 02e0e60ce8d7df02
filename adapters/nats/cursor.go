package nats

import (
	"context"
	"errors"

	"github.com/Broccode/acci-eaf-sub010/core/es"
	"github.com/Broccode/acci-eaf-sub010/ports/kv"
)

// CursorStore keeps tailer cursors in a key-value bucket.
type CursorStore struct {
	kv kv.Store
}

func NewCursorStore(cfg KvConfig) (*CursorStore, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "eafes_cursors"
	}
	store, err := NewKvStore(cfg)
	if err != nil {
		return nil, err
	}
	return &CursorStore{kv: store}, nil
}

func cursorKey(name string) string { return "cursor." + subjectToken(name) }

func (c *CursorStore) GetCursor(ctx context.Context, name string) (uint64, error) {
	seq, err := kv.Get[uint64](ctx, c.kv, cursorKey(name))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, es.ErrCheckpointNotFound
		}
		return 0, err
	}
	return seq, nil
}

func (c *CursorStore) SetCursor(ctx context.Context, name string, lastSeq uint64) error {
	return kv.Put(ctx, c.kv, cursorKey(name), lastSeq, kv.PutOptions{})
}

var _ es.CursorStore = (*CursorStore)(nil)
