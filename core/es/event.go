package es

import (
	"sort"
	"sync"

	"github.com/Broccode/acci-eaf-sub010/internal/reflector"
)

// EventRegistry maps event type names to constructors so we can decode persisted events.
type EventRegistry struct {
	mu   sync.RWMutex
	news map[string]func() any
}

func NewRegistry() *EventRegistry {
	return &EventRegistry{news: map[string]func() any{}}
}

func (r *EventRegistry) Register(eventType string, ctor func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news[eventType] = ctor
}

// New constructs a fresh, empty event value for eventType.
func (r *EventRegistry) New(eventType string) (any, error) {
	r.mu.RLock()
	ctor, ok := r.news[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownEventTypeError{EventType: eventType}
	}
	return ctor(), nil
}

func (r *EventRegistry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.news[eventType]
	return ok
}

// Types returns the registered event type names in lexical order.
func (r *EventRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.news))
	for t := range r.news {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type Registrar interface {
	Register(eventType string, ctor func() any)
}

func RegisterEventFor[T any](r Registrar) {
	RegisterEvents(r, Event[T]())
}

// Event returns a reflection-free constructor for an event of type T.
// Each call to the returned function constructs a fresh *T via new(T).
func Event[T any]() func() any { return func() any { return new(T) } }

// RegisterEvents registers event constructors. For each constructor we build one
// sample to derive the type name and register the constructor under it.
func RegisterEvents(r Registrar, ctors ...func() any) {
	for _, ctor := range ctors {
		r.Register(EventTypeOf(ctor()), ctor)
	}
}

// EventTypeOf returns the persisted type tag of ev. Events that implement
// EventType() get a tag that survives package moves; everything else falls
// back to the fully qualified Go type name.
func EventTypeOf(ev any) (eventType string) {
	switch t := ev.(type) {
	case interface{ EventType() string }:
		eventType = t.EventType()
	default:
		eventType = reflector.TypeName(ev)
	}
	return
}
