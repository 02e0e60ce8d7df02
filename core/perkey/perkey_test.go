package perkey

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_SequentialPerKey(t *testing.T) {
	s := New[string]()
	defer s.Close()

	var (
		mu  sync.Mutex
		seq []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do("tenant-a/ticket-1", func() error {
				mu.Lock()
				seq = append(seq, i)
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				return nil
			})
		}()
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2}, seq)
}

func TestScheduler_ParallelAcrossKeys(t *testing.T) {
	s := New[string]()
	defer s.Close()

	var (
		running    atomic.Int32
		maxRunning atomic.Int32
		wg         sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(key, func() error {
				cur := running.Add(1)
				for {
					m := maxRunning.Load()
					if cur <= m || maxRunning.CompareAndSwap(m, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, maxRunning.Load(), int32(2))
}

func TestScheduler_ErrorPropagation(t *testing.T) {
	s := New[string]()
	defer s.Close()

	boom := errors.New("boom")
	require.ErrorIs(t, s.Do("key", func() error { return boom }), boom)
}

func TestScheduler_DoContext_Cancelled(t *testing.T) {
	s := New[string]()
	defer s.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := s.DoContext(ctx, "key", func() error {
		t.Error("task should not execute")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, s.Len())
}

func TestScheduler_DoContext_Timeout(t *testing.T) {
	s := New[string]()
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do("key", func() error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := s.DoContext(ctx, "key", func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	wg.Wait()
}

func TestScheduler_IdleWorkersAreRetired(t *testing.T) {
	s := New[int]()
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Do(i%5, func() error { return nil }))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	// a retired key gets a fresh worker
	require.NoError(t, s.Do(1, func() error { return nil }))
}

func TestScheduler_Close(t *testing.T) {
	t.Run("rejects new tasks", func(t *testing.T) {
		s := New[string]()
		s.Close()
		require.ErrorIs(t, s.Do("key", func() error { return nil }), ErrSchedulerClosed)
	})

	t.Run("idempotent", func(t *testing.T) {
		s := New[string]()
		s.Close()
		s.Close()
	})

	t.Run("drains queued tasks", func(t *testing.T) {
		s := New[string](WithBufferSize(10))

		var (
			executed atomic.Int32
			wg       sync.WaitGroup
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Do("key", func() error {
					time.Sleep(10 * time.Millisecond)
					executed.Add(1)
					return nil
				})
			}()
		}
		time.Sleep(20 * time.Millisecond)

		s.Close()
		wg.Wait()
		require.Equal(t, int32(5), executed.Load())
	})

	t.Run("concurrent with submissions", func(t *testing.T) {
		s := New[string]()

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Do("key", func() error { return nil })
			}()
		}
		go func() {
			time.Sleep(time.Millisecond)
			s.Close()
		}()
		wg.Wait()
	})
}

func TestScheduler_WithBufferSize_Invalid(t *testing.T) {
	s := New[string](WithBufferSize(0))
	s2 := New[string](WithBufferSize(-1))
	defer s.Close()
	defer s2.Close()

	require.Equal(t, 64, s.bufferSize)
	require.Equal(t, 64, s2.bufferSize)
	require.NoError(t, s.Do("key", func() error { return nil }))
}
