package nats

import (
	"github.com/Broccode/acci-eaf-sub010/core/es"
)

// Snapshotter stores aggregate snapshots in a JetStream key-value bucket.
// Close releases the bucket's connection.
type Snapshotter struct {
	*es.KeyValueSnapshotter
	store *KvStore
}

func NewSnapshotter(cfg KvConfig) (*Snapshotter, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "eafes_snapshots"
	}
	store, err := NewKvStore(cfg)
	if err != nil {
		return nil, err
	}
	return &Snapshotter{KeyValueSnapshotter: es.NewKeyValueSnapshotter(store), store: store}, nil
}

func (s *Snapshotter) Close() error { return s.store.Close() }

var _ es.Snapshotter = (*Snapshotter)(nil)
