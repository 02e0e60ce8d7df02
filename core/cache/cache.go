// Package cache holds small in-process caches for hot read paths such as
// snapshot loads.
//
//	c := cache.NewLRU[*es.Snapshot](cache.LRUOpts{Size: 1024, TTL: time.Minute})
//	c.Put("acme/ticket/t-1", snap)
//	if s, ok := c.Get("acme/ticket/t-1"); ok {
//	    // use s
//	}
//
// Expired entries are dropped lazily on access.
package cache

import "time"

type Cache[V any] interface {
	Get(key string) (V, bool)
	Put(key string, val V)
	Delete(key string)
	Len() int
}

// Nop never stores anything.
type Nop[V any] struct{}

func (Nop[V]) Get(string) (v V, ok bool) { return v, false }
func (Nop[V]) Put(string, V)             {}
func (Nop[V]) Delete(string)             {}
func (Nop[V]) Len() int                  { return 0 }

var _ Cache[int] = Nop[int]{}

// Clock returns the current time. Tests replace it to expire entries.
type Clock func() time.Time
