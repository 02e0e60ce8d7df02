package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

// ErrPublisherUnavailable is returned while the circuit breaker is open.
var ErrPublisherUnavailable = errors.New("nats publisher unavailable")

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
}

type PublisherConfig struct {
	Connect        Connector
	Log            *slog.Logger
	Stream         StreamConfig
	Breaker        BreakerConfig
	PublishTimeout time.Duration
}

type publishFunc func(ctx context.Context, msg *natsgo.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)

// Publisher forwards committed events to a JetStream stream. The event id is
// used as message id so a re-published event is dropped by the server within
// the duplicates window.
type Publisher struct {
	log     *slog.Logger
	closeNc closeFunc
	js      jetstream.JetStream
	prefix  string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[*jetstream.PubAck]
	publish publishFunc
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	nc, closeNc, err := connectOrDefault(cfg.Connect)()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	streamCfg := cfg.Stream.withDefaults()
	if _, _, err := ensureStream(js, streamCfg.jetstream()); err != nil {
		closeNc()
		return nil, err
	}

	p := newPublisher(cfg, streamCfg, js.PublishMsg)
	p.js = js
	p.closeNc = closeNc
	return p, nil
}

func newPublisher(cfg PublisherConfig, streamCfg StreamConfig, publish publishFunc) *Publisher {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("publisher", "nats"), slog.String("stream", streamCfg.Name))

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Publisher{
		log:     log,
		prefix:  streamCfg.SubjectPrefix,
		timeout: timeout,
		cb:      newBreaker(streamCfg.Name, cfg.Breaker, log),
		publish: publish,
	}
}

func newBreaker(name string, cfg BreakerConfig, log *slog.Logger) *gobreaker.CircuitBreaker[*jetstream.PubAck] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	return gobreaker.NewCircuitBreaker[*jetstream.PubAck](gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// State reports the circuit breaker state (closed, half-open, open).
func (p *Publisher) State() string { return p.cb.State().String() }

func (p *Publisher) Publish(ctx context.Context, tenantID string, env es.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if tenantID == "" {
		tenantID = env.TenantID
	}

	subject := Subject(p.prefix, tenantID, env.AggregateType, env.AggregateID)
	msg := natsgo.NewMsg(subject)
	msg.Header.Set(natsgo.MsgIdHdr, env.ID)
	msg.Header.Set(headerEventType, env.Type)
	msg.Header.Set(headerTenantID, tenantID)
	msg.Header.Set(headerAggType, env.AggregateType)
	msg.Header.Set(headerAggID, env.AggregateID)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", env.ID, err)
	}
	msg.Data = data

	ack, err := p.cb.Execute(func() (*jetstream.PubAck, error) {
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.publish(pubCtx, msg, jetstream.WithMsgID(env.ID))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrPublisherUnavailable, err)
		}
		return fmt.Errorf("publish %s to %s: %w", env.Type, subject, err)
	}

	p.log.Debug(
		"published",
		slog.String("subject", subject),
		slog.String("event_id", env.ID),
		slog.Uint64("stream_seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

func (p *Publisher) Close() error {
	if p.js != nil {
		p.js.CleanupPublisher()
	}
	if p.closeNc != nil {
		p.closeNc()
	}
	return nil
}

var _ es.EventPublisher = (*Publisher)(nil)
