package es

import (
	"errors"
	"fmt"
	"time"
)

type (
	noteAgg struct {
		BaseAggregate
		Text  string `json:"text"`
		Edits int    `json:"edits"`
	}

	noteWritten struct {
		Text string `json:"text"`
	}
)

func (noteWritten) EventType() string { return "note.written" }

func (e noteWritten) Validate() error {
	if e.Text == "" {
		return errors.New("text is empty")
	}
	return nil
}

func (n *noteAgg) GetAggType() string      { return "note" }
func (n *noteAgg) Register(r Registrar)    { RegisterEventFor[noteWritten](r) }
func (n *noteAgg) Write(text string) error { return RaiseAndApply(n, &noteWritten{Text: text}) }
func (n *noteAgg) Apply(event any) error {
	switch e := event.(type) {
	case *noteWritten:
		n.Text = e.Text
		n.Edits++
	default:
		return fmt.Errorf("unknown event: %T", event)
	}
	return nil
}

func newNoteRegistry() *EventRegistry {
	reg := NewRegistry()
	new(noteAgg).Register(reg)
	return reg
}

func noteEnvelope(id string, text string) Envelope {
	return Envelope{
		ID:         id,
		Type:       "note.written",
		OccurredAt: time.Now(),
		Data:       []byte(fmt.Sprintf(`{"text":%q}`, text)),
	}
}
