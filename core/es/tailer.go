package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultPollInterval = 500 * time.Millisecond

type (
	tailerOpts struct {
		log          *slog.Logger
		metrics      ESMetrics
		cursors      CursorStore
		batchSize    int
		pollInterval time.Duration
		concurrency  int
		mws          []HandlerMiddleware
	}

	TailerOption interface{ applyToTailer(*tailerOpts) }

	BatchSizeOption    valueOption[int]
	PollIntervalOption valueOption[time.Duration]
	ConcurrencyOption  valueOption[int]
	MiddlewareOption   valueOption[[]HandlerMiddleware]
)

func WithBatchSize(n int) BatchSizeOption                       { return BatchSizeOption{v: n} }
func WithPollInterval(d time.Duration) PollIntervalOption       { return PollIntervalOption{v: d} }
func WithConcurrency(n int) ConcurrencyOption                   { return ConcurrencyOption{v: n} }
func WithMiddlewares(mws ...HandlerMiddleware) MiddlewareOption { return MiddlewareOption{v: mws} }

func (o LogOption) applyToTailer(opts *tailerOpts)          { opts.log = logOrDefault(o.l) }
func (o CursorStoreOption) applyToTailer(opts *tailerOpts)  { opts.cursors = o.v }
func (o BatchSizeOption) applyToTailer(opts *tailerOpts)    { opts.batchSize = o.v }
func (o PollIntervalOption) applyToTailer(opts *tailerOpts) { opts.pollInterval = o.v }
func (o ConcurrencyOption) applyToTailer(opts *tailerOpts)  { opts.concurrency = o.v }
func (o MiddlewareOption) applyToTailer(opts *tailerOpts) {
	opts.mws = append(opts.mws, o.v...)
}

type tailerSub struct {
	name    string
	handler Handler
}

// Tailer delivers the global event log to subscribers by polling
// LoadAllSince. Each subscriber has its own cursor and sees events in global
// sequence order. A failing event stops that subscriber's batch; the cursor
// stays before it and the next run redelivers it.
type Tailer struct {
	store   EventStore
	cursors CursorStore
	subs    []tailerSub
	log     *slog.Logger
	metrics ESMetrics

	batchSize    int
	pollInterval time.Duration
	concurrency  int

	started   atomic.Bool
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func NewTailer(store EventStore, subs []Subscriber, opts ...TailerOption) (*Tailer, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	options := tailerOpts{
		log:          slog.Default(),
		metrics:      NopESMetrics(),
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt.applyToTailer(&options)
	}
	if options.cursors == nil {
		options.cursors = NewInMemoryCursorStore()
	}
	if options.batchSize <= 0 {
		options.batchSize = DefaultBatchSize
	}
	if options.pollInterval <= 0 {
		options.pollInterval = DefaultPollInterval
	}

	t := &Tailer{
		store:        store,
		cursors:      options.cursors,
		log:          options.log.With(slog.String("component", "tailer")),
		metrics:      options.metrics,
		batchSize:    options.batchSize,
		pollInterval: options.pollInterval,
		concurrency:  options.concurrency,
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}

	seen := map[string]struct{}{}
	for _, s := range subs {
		name := s.Name()
		if name == "" {
			return nil, errors.New("subscriber name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate subscriber %q", name)
		}
		seen[name] = struct{}{}
		t.subs = append(t.subs, tailerSub{name: name, handler: applyMiddlewares(s, options.mws)})
	}
	if len(t.subs) == 0 {
		return nil, errors.New("at least one subscriber is required")
	}
	return t, nil
}

// RunOnce lets every subscriber catch up with the log. It returns the number
// of events handled and the joined errors of the subscribers that failed.
func (t *Tailer) RunOnce(ctx context.Context) (int, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		handled int
		errs    []error
	)
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for _, sub := range t.subs {
		g.Go(func() error {
			n, err := t.catchUp(ctx, sub)
			mu.Lock()
			defer mu.Unlock()
			handled += n
			if err != nil {
				errs = append(errs, fmt.Errorf("subscriber %s: %w", sub.name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return handled, errors.Join(errs...)
}

func (t *Tailer) cursor(ctx context.Context, name string) (uint64, error) {
	seq, err := t.cursors.GetCursor(ctx, name)
	if errors.Is(err, ErrCheckpointNotFound) {
		return 0, nil
	}
	return seq, err
}

func (t *Tailer) catchUp(ctx context.Context, sub tailerSub) (handled int, err error) {
	log := t.log.With(slog.String("subscriber", sub.name))

	cursor, err := t.cursor(ctx, sub.name)
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		batch, err := t.store.LoadAllSince(ctx, cursor, t.batchSize)
		if err != nil {
			return handled, fmt.Errorf("failed to load events after seq %d: %w", cursor, err)
		}
		if len(batch) == 0 {
			t.metrics.ProjectorLag(sub.name, 0)
			return handled, nil
		}
		live := len(batch) < t.batchSize

		var handleErr error
		last := cursor
		for i, env := range batch {
			if handleErr = sub.handler.Handle(NewMsgCtx(ctx, log, env, live)); handleErr != nil {
				t.metrics.ProjectorLag(sub.name, int64(len(batch)-i))
				break
			}
			last = env.Seq
			handled++
		}

		if last != cursor {
			if err := t.cursors.SetCursor(ctx, sub.name, last); err != nil {
				return handled, fmt.Errorf("failed to store cursor %d: %w", last, err)
			}
			cursor = last
		}
		if handleErr != nil {
			return handled, handleErr
		}
		if live {
			t.metrics.ProjectorLag(sub.name, 0)
			return handled, nil
		}
	}
}

// Start polls in the background until ctx is done or Stop is called.
func (t *Tailer) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.log.Info("starting", slog.Int("subscribers", len(t.subs)), slog.Duration("poll_interval", t.pollInterval))

	go func() {
		defer func() {
			t.log.Info("stopped")
			close(t.done)
		}()

		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()

		for {
			n, err := t.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				t.log.Error("run failed", slog.Any("error", err))
			} else if n > 0 {
				t.log.Debug("caught up", slog.Int("handled", n))
			}

			select {
			case <-ctx.Done():
				return
			case <-t.closeChan:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the poll loop started by Start and waits for it to exit.
func (t *Tailer) Stop() {
	t.closeOnce.Do(func() {
		close(t.closeChan)
		if t.started.Load() {
			<-t.done
		}
	})
}

// Done is closed once a started tailer has exited.
func (t *Tailer) Done() <-chan struct{} { return t.done }
