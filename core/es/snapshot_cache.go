package es

import (
	"context"

	"github.com/Broccode/acci-eaf-sub010/core/cache"
	"github.com/Broccode/acci-eaf-sub010/core/sf"
)

// CachedSnapshotter keeps recently used snapshots in an in-process cache in
// front of another Snapshotter. Saves write through; concurrent loads of the
// same stream share one backend read. Missing snapshots are not cached.
type CachedSnapshotter struct {
	next     Snapshotter
	cache    cache.Cache[*Snapshot]
	inflight sf.Group[*Snapshot]
}

func NewCachedSnapshotter(next Snapshotter, c cache.Cache[*Snapshot]) *CachedSnapshotter {
	if c == nil {
		c = cache.NewLRU[*Snapshot](cache.LRUOpts{})
	}
	return &CachedSnapshotter{next: next, cache: c}
}

func (c *CachedSnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	key := snapshotKey(snapshot.TenantID, snapshot.ObjType, snapshot.ObjID)
	if err := c.next.SaveSnapshot(ctx, snapshot); err != nil {
		c.cache.Delete(key)
		return err
	}
	cp := *snapshot
	c.cache.Put(key, &cp)
	return nil
}

func (c *CachedSnapshotter) LoadSnapshot(ctx context.Context, tenantID, objType, objID string) (*Snapshot, error) {
	key := snapshotKey(tenantID, objType, objID)
	if s, ok := c.cache.Get(key); ok {
		cp := *s
		return &cp, nil
	}

	s, _, err := c.inflight.Do(key, func() (*Snapshot, error) {
		s, err := c.next.LoadSnapshot(ctx, tenantID, objType, objID)
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

var _ Snapshotter = (*CachedSnapshotter)(nil)
