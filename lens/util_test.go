package lens

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimitingWaitGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	limit := 3
	lwg := NewLimitingWaitGroup(limit)

	var mu sync.Mutex
	var running, maxRunning int
	var finished atomic.Int32
	for i := 0; i < 12; i++ {
		lwg.Take()
		go func() {
			defer lwg.Release()

			mu.Lock()
			running++
			maxRunning = max(maxRunning, running)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			finished.Add(1)
		}()
	}

	lwg.Join()

	assert.Equal(t, int32(12), finished.Load())
	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, maxRunning, limit)
}

func TestLimitingWaitGroupReuse(t *testing.T) {
	t.Parallel()

	lwg := NewLimitingWaitGroup(0) // clamped to one
	var count atomic.Int32
	for round := 0; round < 3; round++ {
		lwg.Take()
		go func() {
			defer lwg.Release()
			count.Add(1)
		}()
		lwg.Join()
		assert.Equal(t, int32(round+1), count.Load())
	}
}

func TestErrGroupLimitCPU(t *testing.T) {
	t.Parallel()

	g := ErrGroupLimitCPU()
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			count.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(20), count.Load())
}
