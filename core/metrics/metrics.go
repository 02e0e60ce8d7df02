// Package metrics holds the backend-neutral instruments the event store core
// reports through. adapters/prometheus implements them.
package metrics

import "time"

// Timer measures one operation:
//
//	defer m.StoreLoadDuration("ticket").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type funcTimer struct {
	start   time.Time
	observe func(time.Duration)
}

func (t funcTimer) ObserveDuration() { t.observe(time.Since(t.start)) }

// NewTimer starts a Timer that reports the elapsed time to observe.
func NewTimer(observe func(time.Duration)) Timer {
	return funcTimer{start: time.Now(), observe: observe}
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

func NopTimer() Timer { return nopTimer{} }
