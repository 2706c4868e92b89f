package mt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitBarrier(t *testing.T) {
	m := NewManager(context.Background(), 4, nil)
	var done atomic.Int64
	for i := 0; i < 20; i++ {
		m.Start("sleep", func(context.Context) bool {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return true
		})
	}
	require.NoError(t, m.Wait())
	assert.True(t, m.IsAsyncWorkComplete())
	assert.Equal(t, int64(20), done.Load())
	assert.Equal(t, int64(20), m.Stats().Completed)
}

func TestWorkerLimit(t *testing.T) {
	m := NewManager(context.Background(), 2, nil)
	var running, peak atomic.Int64
	for i := 0; i < 10; i++ {
		m.Start("limited", func(context.Context) bool {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return true
		})
	}
	require.NoError(t, m.Wait())
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestFailureDoesNotAbortSiblings(t *testing.T) {
	m := NewManager(context.Background(), 2, nil)
	var ran atomic.Int64
	m.Start("bad", func(context.Context) bool { return false })
	for i := 0; i < 5; i++ {
		m.Start("good", func(context.Context) bool {
			ran.Add(1)
			return true
		})
	}
	err := m.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskFailed))
	assert.Equal(t, int64(5), ran.Load())
	assert.Equal(t, int64(1), m.Stats().Failed)
}

func TestPanicCountsAsFailure(t *testing.T) {
	m := NewManager(context.Background(), 1, nil)
	m.Start("boom", func(context.Context) bool { panic("boom") })
	assert.ErrorIs(t, m.Wait(), ErrTaskFailed)
}

func TestNestedStart(t *testing.T) {
	m := NewManager(context.Background(), 1, nil)
	var inner atomic.Bool
	m.Start("outer", func(context.Context) bool {
		m.Start("inner", func(context.Context) bool {
			time.Sleep(time.Millisecond)
			inner.Store(true)
			return true
		})
		return true
	})
	require.NoError(t, m.Wait())
	assert.True(t, inner.Load())
	assert.True(t, m.IsAsyncWorkComplete())
}

func TestStartRanges(t *testing.T) {
	m := NewManager(context.Background(), 3, nil)
	seen := make([]int32, 103)
	m.StartRanges("ranges", len(seen), 10, func(_ context.Context, start, count int) bool {
		for i := start; i < start+count; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return true
	})
	require.NoError(t, m.Wait())
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
	assert.Equal(t, int64(11), m.Stats().Completed)
}

func TestTerminateKeepsNonAbandonable(t *testing.T) {
	m := NewManager(context.Background(), 1, nil)
	gate := make(chan struct{})
	var blockerDone, kept, dropped atomic.Bool

	m.Start("blocker", func(context.Context) bool {
		<-gate
		blockerDone.Store(true)
		return true
	})
	// Give the blocker time to take the only worker.
	time.Sleep(5 * time.Millisecond)

	m.Start("abandonable", func(context.Context) bool {
		dropped.Store(true)
		return true
	})
	m.StartNonAbandonable("write", func(context.Context) bool {
		kept.Store(true)
		return true
	})

	m.Terminate()
	close(gate)
	require.NoError(t, m.Wait())

	assert.True(t, blockerDone.Load())
	assert.True(t, kept.Load(), "non-abandonable task must run")
	assert.False(t, dropped.Load(), "abandonable task must be skipped")
	assert.Equal(t, int64(1), m.Stats().Abandoned)
	assert.True(t, m.Terminated())
}

func TestReuseAcrossBatches(t *testing.T) {
	m := NewManager(context.Background(), 2, nil)
	var mu sync.Mutex
	var order []string
	m.Start("a", func(context.Context) bool {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
		return true
	})
	require.NoError(t, m.Wait())
	m.Start("b", func(context.Context) bool {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		return true
	})
	require.NoError(t, m.Wait())
	assert.Equal(t, []string{"a", "b"}, order)
}
