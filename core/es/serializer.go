package es

import (
	"errors"

	json "github.com/goccy/go-json"
)

// Serializer maps domain events to their durable form and back.
type Serializer interface {
	Serialize(event any) (eventType string, payload []byte, err error)
	Deserialize(eventType string, payload []byte) (any, error)
}

// JSONSerializer encodes events as JSON and dispatches decoding through an
// EventRegistry. It also satisfies Decoder for envelopes.
type JSONSerializer struct {
	registry *EventRegistry
}

func NewJSONSerializer(registry *EventRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &JSONSerializer{registry: registry}
}

func (s *JSONSerializer) Registry() *EventRegistry { return s.registry }

func (s *JSONSerializer) Serialize(event any) (string, []byte, error) {
	if event == nil {
		return "", nil, &SerializationError{Op: "encode", Err: errors.New("event is nil")}
	}
	eventType := EventTypeOf(event)
	data, err := json.Marshal(event)
	if err != nil {
		return eventType, nil, &SerializationError{Op: "encode", EventType: eventType, Err: err}
	}
	return eventType, data, nil
}

func (s *JSONSerializer) Deserialize(eventType string, payload []byte) (any, error) {
	ev, err := s.registry.New(eventType)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || string(payload) == "null" {
		return ev, nil
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, &SerializationError{Op: "decode", EventType: eventType, Err: err}
	}
	return ev, nil
}

func (s *JSONSerializer) Decode(env Envelope) (any, error) {
	ev, err := s.Deserialize(env.Type, env.Data)
	if err != nil {
		var se *SerializationError
		if errors.As(err, &se) {
			se.EventID = env.ID
		}
		return nil, err
	}
	return ev, nil
}

var (
	_ Serializer = (*JSONSerializer)(nil)
	_ Decoder    = (*JSONSerializer)(nil)
)
