package cache

import (
	"container/list"
	"sync"
	"time"
)

type LRUOpts struct {
	// Size bounds the number of entries; defaults to 128.
	Size int
	// TTL expires entries after this long; zero keeps them until evicted.
	TTL   time.Duration
	Clock Clock
}

type lruEntry[V any] struct {
	key       string
	val       V
	expiresAt time.Time
}

// LRU is a size-bounded cache safe for concurrent use. The least recently
// used entry is evicted when a Put exceeds Size.
type LRU[V any] struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	now   Clock
	ll    *list.List
	items map[string]*list.Element
}

func NewLRU[V any](opts LRUOpts) *LRU[V] {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &LRU[V]{
		size:  opts.Size,
		ttl:   opts.TTL,
		now:   opts.Clock,
		ll:    list.New(),
		items: make(map[string]*list.Element, opts.Size),
	}
}

func (l *LRU[V]) Get(key string) (v V, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ele, ok := l.items[key]
	if !ok {
		return v, false
	}
	e := ele.Value.(*lruEntry[V])
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.removeElement(ele)
		return v, false
	}
	l.ll.MoveToFront(ele)
	return e.val, true
}

func (l *LRU[V]) Put(key string, val V) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if l.ttl > 0 {
		expiresAt = l.now().Add(l.ttl)
	}

	if ele, ok := l.items[key]; ok {
		e := ele.Value.(*lruEntry[V])
		e.val, e.expiresAt = val, expiresAt
		l.ll.MoveToFront(ele)
		return
	}

	l.items[key] = l.ll.PushFront(&lruEntry[V]{key: key, val: val, expiresAt: expiresAt})
	if l.ll.Len() > l.size {
		l.removeElement(l.ll.Back())
	}
}

func (l *LRU[V]) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ele, ok := l.items[key]; ok {
		l.removeElement(ele)
	}
}

func (l *LRU[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

func (l *LRU[V]) removeElement(ele *list.Element) {
	l.ll.Remove(ele)
	delete(l.items, ele.Value.(*lruEntry[V]).key)
}

var _ Cache[int] = (*LRU[int])(nil)
