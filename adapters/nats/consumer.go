package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Broccode/acci-eaf-sub010/core/es"
)

type ConsumerConfig struct {
	Connect Connector
	Log     *slog.Logger
	Stream  StreamConfig
	// Durable names the consumer. Restarted consumers resume where they left.
	Durable string
	// TenantID and AggregateType narrow the subjects; empty matches all.
	TenantID      string
	AggregateType string
	// NakDelay is the redelivery delay after a failed handler.
	NakDelay   time.Duration
	MaxDeliver int
}

// Consumer delivers published events to a Handler at least once. Messages
// are acked after the handler returned nil and redelivered otherwise, so
// handlers must be idempotent (a Projector is).
type Consumer struct {
	log      *slog.Logger
	closeNc  closeFunc
	consumer jetstream.Consumer
	nakDelay time.Duration

	mu        sync.Mutex
	cc        jetstream.ConsumeContext
	closeOnce sync.Once
}

func NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Durable == "" {
		return nil, errors.New("durable name is required")
	}

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
	stream, _, err := ensureStream(js, streamCfg.jetstream())
	if err != nil {
		closeNc()
		return nil, err
	}

	maxDeliver := cfg.MaxDeliver
	if maxDeliver == 0 {
		maxDeliver = -1
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: FilterSubject(streamCfg.SubjectPrefix, cfg.TenantID, cfg.AggregateType),
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Durable, err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	nakDelay := cfg.NakDelay
	if nakDelay <= 0 {
		nakDelay = time.Second
	}

	return &Consumer{
		log:      log.With(slog.String("consumer", cfg.Durable), slog.String("stream", streamCfg.Name)),
		closeNc:  closeNc,
		consumer: consumer,
		nakDelay: nakDelay,
	}, nil
}

func decodeMsg(msg jetstream.Msg) (env es.Envelope, err error) {
	if err = json.Unmarshal(msg.Data(), &env); err != nil {
		return env, fmt.Errorf("decode event on %s: %w", msg.Subject(), err)
	}
	return env, env.Validate()
}

// Start consumes in the background until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context, h es.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cc != nil {
		return errors.New("consumer already started")
	}

	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, h, msg)
	})
	if err != nil {
		return err
	}
	c.cc = cc
	context.AfterFunc(ctx, c.Stop)

	c.log.Info("consuming")
	return nil
}

func (c *Consumer) handle(ctx context.Context, h es.Handler, msg jetstream.Msg) {
	env, err := decodeMsg(msg)
	if err != nil {
		// poison message, redelivery cannot fix it
		c.log.Error("dropping undecodable message", slog.Any("error", err))
		if termErr := msg.Term(); termErr != nil {
			c.log.Error("term failed", slog.Any("error", termErr))
		}
		return
	}

	if err := h.Handle(es.NewMsgCtx(ctx, c.log, env, true)); err != nil {
		c.log.Warn("handler failed, redelivering",
			slog.String("event_id", env.ID),
			slog.Any("error", err),
		)
		if nakErr := msg.NakWithDelay(c.nakDelay); nakErr != nil {
			c.log.Error("nak failed", slog.Any("error", nakErr))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		c.log.Error("ack failed", slog.String("event_id", env.ID), slog.Any("error", err))
	}
}

// Stop drains in-flight messages. The consumer can be started again.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cc == nil {
		return
	}
	c.cc.Drain()
	c.cc = nil
	c.log.Info("stopped")
}

// Close stops consuming and releases the connection.
func (c *Consumer) Close() error {
	c.Stop()
	c.closeOnce.Do(c.closeNc)
	return nil
}
