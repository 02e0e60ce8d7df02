// Package kv is the key-value port used for snapshots and other small,
// overwrite-in-place state. Adapters implement Store; Put and Get add typed
// JSON encoding on top.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")
)

type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	// TTL expires the entry after the given duration. Zero keeps it forever.
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that some backends cannot store. NATS KV only
// allows [-/_=.a-zA-Z0-9] without leading or trailing dots.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: %q starts or ends with a dot", ErrInvalidKey, key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '/', r == '_', r == '=', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	if err = json.Unmarshal(entry.Data, &out); err != nil {
		err = fmt.Errorf("decode %s: %w", key, err)
	}
	return
}
