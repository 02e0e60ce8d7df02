package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Broccode/acci-eaf-sub010/ports/kv"
)

// ErrKeyTTL is returned for a per-key TTL that differs from the bucket TTL.
var ErrKeyTTL = errors.New("per-key ttl not supported, configure the bucket ttl")

type KvConfig struct {
	Connect Connector
	Bucket  string        `mapstructure:"bucket"`
	TTL     time.Duration `mapstructure:"ttl"`
	// MaxBytes caps the bucket size; zero keeps the server default.
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// KvStore implements kv.Store on a JetStream key-value bucket.
type KvStore struct {
	kv      jetstream.KeyValue
	ttl     time.Duration
	closeNc closeFunc
}

type kvEntry struct {
	Data []byte         `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

func NewKvStore(cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	nc, closeNc, err := connectOrDefault(cfg.Connect)()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		TTL:      cfg.TTL,
		MaxBytes: cfg.MaxBytes,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, err)
	}
	return &KvStore{kv: bucket, ttl: cfg.TTL, closeNc: closeNc}, nil
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if opts.TTL > 0 && opts.TTL != k.ttl {
		return fmt.Errorf("%w: %s", ErrKeyTTL, opts.TTL)
	}
	data, err := json.Marshal(kvEntry{Data: entry.Data, Meta: entry.Meta})
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	var e kvEntry
	if err := json.Unmarshal(v.Value(), &e); err != nil {
		return kv.Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return kv.Entry{Data: e.Data, Meta: e.Meta}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Close() error {
	k.closeNc()
	return nil
}

var _ kv.Store = (*KvStore)(nil)
