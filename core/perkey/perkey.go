// Package perkey serializes work per key while letting different keys run
// concurrently. The repository uses it to run commands against one aggregate
// one at a time.
package perkey

import (
	"context"
	"sync"
)

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	bufferSize int
}

// WithBufferSize sets the task buffer size per worker (default: 64).
func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// Scheduler runs tasks such that for any given key K tasks are executed
// sequentially in submission order. A worker goroutine exists only while its
// key has pending tasks.
type Scheduler[K comparable] struct {
	mu         sync.Mutex
	workers    map[K]*worker
	closed     bool
	wg         sync.WaitGroup // tracks in-flight Do operations
	bufferSize int
}

type worker struct {
	tasks   chan *task
	pending int // guarded by Scheduler.mu
}

type task struct {
	fn   func() error
	done chan error
}

func New[K comparable](opts ...Option) *Scheduler[K] {
	cfg := &config{bufferSize: 64}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Scheduler[K]{
		workers:    make(map[K]*worker),
		bufferSize: cfg.bufferSize,
	}
}

// Do schedules fn to run for the given key and waits for its result.
func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext is like Do but respects context cancellation. A task that was
// already enqueued still runs when ctx is cancelled; only the wait is aborted.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.wg.Add(1)
	defer s.wg.Done()
	w := s.acquireLocked(key)
	s.mu.Unlock()

	t := &task{
		fn:   fn,
		done: make(chan error, 1),
	}

	select {
	case w.tasks <- t:
	case <-ctx.Done():
		s.mu.Lock()
		if s.releaseLocked(key, w) {
			close(w.tasks)
		}
		s.mu.Unlock()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of keys that currently have a worker.
func (s *Scheduler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close stops accepting new tasks and shuts down all workers. Tasks already
// queued are still processed.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for _, w := range s.workers {
		close(w.tasks)
	}
	s.workers = map[K]*worker{}
	s.mu.Unlock()
}

func (s *Scheduler[K]) acquireLocked(key K) *worker {
	w, ok := s.workers[key]
	if !ok {
		w = &worker{tasks: make(chan *task, s.bufferSize)}
		s.workers[key] = w
		go s.run(key, w)
	}
	w.pending++
	return w
}

// releaseLocked drops one pending task and retires the worker when it was the
// last one. It reports whether the worker was retired.
func (s *Scheduler[K]) releaseLocked(key K, w *worker) bool {
	w.pending--
	if w.pending > 0 {
		return false
	}
	if s.workers[key] == w {
		delete(s.workers, key)
	}
	return true
}

func (s *Scheduler[K]) run(key K, w *worker) {
	for t := range w.tasks {
		t.done <- t.fn()

		s.mu.Lock()
		retired := s.releaseLocked(key, w)
		s.mu.Unlock()
		if retired {
			return
		}
	}
}

// ErrSchedulerClosed is returned when Do is called on a closed scheduler.
var ErrSchedulerClosed = &SchedulerError{"scheduler is closed"}

type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string { return e.msg }
