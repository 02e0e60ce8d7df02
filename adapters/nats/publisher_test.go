package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

func testEnvelope(id string) es.Envelope {
	return es.Envelope{
		ID:            id,
		Seq:           7,
		Version:       3,
		TenantID:      "acme",
		StreamID:      es.StreamID("ticket", "t-1"),
		AggregateType: "ticket",
		AggregateID:   "t-1",
		Type:          "ticket.created",
		OccurredAt:    time.Now().UTC(),
		Data:          []byte(`{"title":"printer"}`),
	}
}

func TestPublisher_Message(t *testing.T) {
	var got *natsgo.Msg
	p := newPublisher(PublisherConfig{}, StreamConfig{}.withDefaults(),
		func(_ context.Context, msg *natsgo.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			got = msg
			return &jetstream.PubAck{Sequence: 1}, nil
		},
	)

	env := testEnvelope("e-1")
	require.NoError(t, p.Publish(t.Context(), "acme", env))
	require.NotNil(t, got)
	require.Equal(t, "eafes.events.acme.ticket.t-1", got.Subject)
	require.Equal(t, "e-1", got.Header.Get(natsgo.MsgIdHdr))
	require.Equal(t, "ticket.created", got.Header.Get(headerEventType))
	require.Equal(t, "acme", got.Header.Get(headerTenantID))

	var decoded es.Envelope
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	require.Equal(t, env.ID, decoded.ID)
	require.Equal(t, env.Seq, decoded.Seq)
	require.Equal(t, env.Version, decoded.Version)
	require.JSONEq(t, string(env.Data), string(decoded.Data))
}

func TestPublisher_RejectsInvalidEnvelope(t *testing.T) {
	p := newPublisher(PublisherConfig{}, StreamConfig{}.withDefaults(),
		func(context.Context, *natsgo.Msg, ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			t.Fatal("must not publish")
			return nil, nil
		},
	)
	env := testEnvelope("")
	require.Error(t, p.Publish(t.Context(), "acme", env))
}

func TestPublisher_BreakerOpens(t *testing.T) {
	calls := 0
	boom := errors.New("no responders")
	p := newPublisher(
		PublisherConfig{Breaker: BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}},
		StreamConfig{}.withDefaults(),
		func(context.Context, *natsgo.Msg, ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
			calls++
			return nil, boom
		},
	)

	for i := 0; i < 2; i++ {
		err := p.Publish(t.Context(), "acme", testEnvelope("e-1"))
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, "open", p.State())

	err := p.Publish(t.Context(), "acme", testEnvelope("e-2"))
	require.ErrorIs(t, err, ErrPublisherUnavailable)
	require.Equal(t, 2, calls)
}
