package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONSerializer(t *testing.T) {
	s := NewJSONSerializer(newNoteRegistry())

	t.Run("round trip", func(t *testing.T) {
		eventType, data, err := s.Serialize(&noteWritten{Text: "hello"})
		require.NoError(t, err)
		require.Equal(t, "note.written", eventType)

		ev, err := s.Deserialize(eventType, data)
		require.NoError(t, err)
		require.Equal(t, &noteWritten{Text: "hello"}, ev)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := s.Deserialize("note.deleted", []byte(`{}`))
		require.ErrorIs(t, err, ErrUnknownEventType)
		var ue *UnknownEventTypeError
		require.ErrorAs(t, err, &ue)
		require.Equal(t, "note.deleted", ue.EventType)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := s.Decode(Envelope{ID: "e-1", Type: "note.written", Data: []byte(`{"text":`)})
		require.ErrorIs(t, err, ErrSerialization)
		var se *SerializationError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "e-1", se.EventID)
		require.Equal(t, "decode", se.Op)
	})

	t.Run("type tags", func(t *testing.T) {
		require.Equal(t, "note.written", EventTypeOf(noteWritten{}))
		require.True(t, s.Registry().Has("note.written"))
		require.Equal(t, []string{"note.written"}, s.Registry().Types())
	})
}
