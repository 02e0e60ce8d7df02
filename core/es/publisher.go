package es

import (
	"context"
	"sync"
)

// EventPublisher forwards committed events to the outside world. The
// repository calls it after a successful append; errors are logged and
// counted, never returned to the caller of Save.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID string, env Envelope) error
}

type PublisherFunc func(ctx context.Context, tenantID string, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, tenantID string, env Envelope) error {
	return f(ctx, tenantID, env)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Envelope) error { return nil }

func NopPublisher() EventPublisher { return nopPublisher{} }

// InMemoryPublisher records every published envelope.
type InMemoryPublisher struct {
	mu        sync.Mutex
	published []Envelope
}

func NewInMemoryPublisher() *InMemoryPublisher { return &InMemoryPublisher{} }

func (p *InMemoryPublisher) Publish(_ context.Context, _ string, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env)
	return nil
}

func (p *InMemoryPublisher) Published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.published))
	copy(out, p.published)
	return out
}

type PublisherOption valueOption[EventPublisher]

func WithPublisher(p EventPublisher) PublisherOption { return PublisherOption{v: p} }

var (
	_ EventPublisher = PublisherFunc(nil)
	_ EventPublisher = (*InMemoryPublisher)(nil)
)
