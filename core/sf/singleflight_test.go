package sf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_CollapsesConcurrentCalls(t *testing.T) {
	var (
		g       Group[int]
		calls   atomic.Int32
		release = make(chan struct{})
		started = make(chan struct{})
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, _, err := g.Do("k", func() (int, error) {
			close(started)
			<-release
			calls.Add(1)
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
	}()
	<-started

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := g.Do("k", func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	close(release)
	wg.Wait()

	require.GreaterOrEqual(t, calls.Load(), int32(1))
	require.LessOrEqual(t, calls.Load(), int32(5))
}

func TestGroup_Error(t *testing.T) {
	var g Group[string]
	boom := errors.New("boom")
	v, _, err := g.Do("k", func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	require.Empty(t, v)
}
