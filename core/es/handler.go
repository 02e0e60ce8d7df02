package es

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// MsgCtx carries one event through a subscriber's handler chain.
type MsgCtx struct {
	ctx  context.Context
	log  *slog.Logger
	ev   Envelope
	live bool
}

// NewMsgCtx builds a MsgCtx for env. Tailers build these; tests and tools may
// use it to drive a Handler directly.
func NewMsgCtx(ctx context.Context, log *slog.Logger, env Envelope, live bool) MsgCtx {
	return MsgCtx{
		ctx:  ctx,
		log:  logOrDefault(log).With(env.logAttrs()),
		ev:   env,
		live: live,
	}
}

func (c *MsgCtx) Log() *slog.Logger        { return c.log }
func (c *MsgCtx) Context() context.Context { return c.ctx }

// Live reports whether the event belongs to the last batch of a catch-up run.
func (c *MsgCtx) Live() bool { return c.live }

func (c *MsgCtx) Seq() uint64           { return c.ev.Seq }
func (c *MsgCtx) Envelope() Envelope    { return c.ev }
func (c *MsgCtx) Version() Version      { return c.ev.Version }
func (c *MsgCtx) TenantID() string      { return c.ev.TenantID }
func (c *MsgCtx) AggregateID() string   { return c.ev.AggregateID }
func (c *MsgCtx) AggregateType() string { return c.ev.AggregateType }
func (c *MsgCtx) Data() json.RawMessage { return c.ev.Data }
func (c *MsgCtx) Type() string          { return c.ev.Type }
func (c *MsgCtx) OccurredAt() time.Time { return c.ev.OccurredAt }

type (
	Handler interface {
		Handle(msgCtx MsgCtx) error
	}

	// Subscriber is a named Handler. The name keys its cursor.
	Subscriber interface {
		Name() string
		Handler
	}

	HandleFunc           func(ctx MsgCtx) error
	HandlerMiddleware    func(next Handler) Handler
	MiddlewareHandleFunc func(ctx MsgCtx, next Handler) error
)

func applyMiddlewares(h Handler, middlewares []HandlerMiddleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func (f HandleFunc) Handle(ctx MsgCtx) error { return f(ctx) }

type namedHandler struct {
	name string
	Handler
}

func (n namedHandler) Name() string { return n.name }

// NamedSubscriber turns a plain handler into a Subscriber.
func NamedSubscriber(name string, h Handler) Subscriber { return namedHandler{name: name, Handler: h} }

// === middleware ===

type middleware struct {
	next Handler
	mw   MiddlewareHandleFunc
}

func (m *middleware) Handle(msgCtx MsgCtx) error { return m.mw(msgCtx, m.next) }

func MiddlewareHandle(mw MiddlewareHandleFunc) HandlerMiddleware {
	return func(next Handler) Handler {
		return &middleware{next: next, mw: mw}
	}
}

func NewLogMiddleware(attrs ...any) HandlerMiddleware {
	return MiddlewareHandle(func(ctx MsgCtx, next Handler) (err error) {
		handleAt := time.Now()

		log := ctx.Log().With(attrs...)

		err = next.Handle(ctx)
		if err != nil {
			log.Error("failed", slog.Any("error", err), slog.Duration("duration", time.Since(handleAt)))
		} else {
			log.Debug("handled", slog.Duration("duration", time.Since(handleAt)))
		}

		return err
	})
}

// NewTenantFilterMiddleware only passes events of the given tenants.
func NewTenantFilterMiddleware(tenants ...string) HandlerMiddleware {
	allowed := make(map[string]struct{}, len(tenants))
	for _, t := range tenants {
		allowed[t] = struct{}{}
	}
	return MiddlewareHandle(func(ctx MsgCtx, next Handler) error {
		if _, ok := allowed[ctx.TenantID()]; !ok {
			return nil
		}
		return next.Handle(ctx)
	})
}
