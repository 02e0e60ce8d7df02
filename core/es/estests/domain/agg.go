package domain

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

const AggType = "counter"

type (
	// Counter is a bounded counter used by the store contract tests.
	Counter struct {
		es.BaseAggregate

		Value       int `json:"value"`
		Increments  int `json:"increments"`
		Resets      int `json:"resets"`
		TotalEvents int `json:"total_events"`
	}

	Incremented struct {
		By int `json:"by"`
	}

	CounterReset struct{}
)

func (Incremented) EventType() string  { return "counter.incremented" }
func (CounterReset) EventType() string { return "counter.reset" }

func (e Incremented) Validate() error {
	if e.By <= 0 {
		return errors.New("increment must be positive")
	}
	return nil
}

func (a *Counter) GetAggType() string { return AggType }
func (a *Counter) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[Incremented](), es.Event[CounterReset]())
}

func (a *Counter) Apply(event any) error {
	switch e := event.(type) {
	case *Incremented:
		a.Value += e.By
		a.Increments++
	case *CounterReset:
		a.Value = 0
		a.Resets++
	default:
		return fmt.Errorf("unknown event: %T", event)
	}
	a.TotalEvents++
	return nil
}

func (a *Counter) Snapshot() ([]byte, error)         { return json.Marshal(a) }
func (a *Counter) RestoreSnapshot(data []byte) error { return json.Unmarshal(data, a) }

var _ es.Snapshottable = (*Counter)(nil)

// === Commands ===

const Max = 1000

func (a *Counter) Inc() error { return a.IncBy(1) }

func (a *Counter) IncBy(v int) error {
	if a.Value+v > Max {
		return fmt.Errorf("counter cannot exceed %d", Max)
	}
	return es.RaiseAndApply(a, &Incremented{By: v})
}

func (a *Counter) Reset() error { return es.RaiseAndApply(a, &CounterReset{}) }

func NewCounter(id string) *Counter {
	a := &Counter{}
	a.SetID(id)
	return a
}
