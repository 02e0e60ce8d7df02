// Package sf collapses concurrent calls for the same key into one.
package sf

import "golang.org/x/sync/singleflight"

// Group runs fn once per key at a time; callers arriving while a call is in
// flight get its result.
type Group[T any] struct {
	group singleflight.Group
}

func (g *Group[T]) Do(key string, fn func() (T, error)) (out T, shared bool, err error) {
	v, err, shared := g.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return out, shared, err
	}
	return v.(T), shared, nil
}

// Forget makes the next Do for key run fn even if a call is in flight.
func (g *Group[T]) Forget(key string) { g.group.Forget(key) }
