package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageLock_Ownership(t *testing.T) {
	var lock PageLock
	a, b := NewOwner(), NewOwner()
	require.NotEqual(t, a, b)

	lock.Lock(a)
	assert.True(t, lock.IsLockedBy(a))
	assert.False(t, lock.IsLockedBy(b))
	assert.False(t, lock.IsLockedBy(0))
	lock.Unlock()
	assert.False(t, lock.IsLockedBy(a))
}

func TestPageLock_MutualExclusion(t *testing.T) {
	var lock PageLock
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := NewOwner()
			for j := 0; j < 1000; j++ {
				lock.Lock(owner)
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16000, counter)
}

func TestRunWithConcurrency(t *testing.T) {
	var ran atomic.Int64
	var inFlight, maxInFlight atomic.Int64
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			cur := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			ran.Add(1)
			return nil
		}
	}
	require.NoError(t, RunWithConcurrency(context.Background(), 4, tasks))
	assert.Equal(t, int64(50), ran.Load())
	assert.LessOrEqual(t, maxInFlight.Load(), int64(4))
}

func TestRunWithConcurrency_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	}
	err := RunWithConcurrency(context.Background(), 2, tasks)
	assert.ErrorIs(t, err, boom)
}

func TestRunWithConcurrency_RecoversPanics(t *testing.T) {
	tasks := []Task{func(ctx context.Context) error { panic("page corrupted") }}
	err := RunWithConcurrency(context.Background(), 1, tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page corrupted")
}

func TestRunWithConcurrency_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunWithConcurrency(ctx, 2, []Task{func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, qerrors.ErrTerminated)
}

func TestParallelRange_CoversAllIndices(t *testing.T) {
	const n = 10_000
	seen := make([]atomic.Int32, n)
	err := ParallelRange(context.Background(), 3, n, func(_ context.Context, start, end int64) error {
		for i := start; i < end; i++ {
			seen[i].Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "index %d", i)
	}
}

func TestTerminationFlags(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flag := FromContext(ctx)
	assert.NoError(t, CheckRunning(flag, "scan"))
	cancel()
	err := CheckRunning(flag, "scan")
	assert.ErrorIs(t, err, qerrors.ErrTerminated)
	assert.ErrorIs(t, err, context.Canceled)

	var manual ManualFlag
	assert.True(t, manual.Running())
	manual.Terminate()
	assert.ErrorIs(t, CheckRunning(&manual, "scan"), qerrors.ErrTerminated)
	assert.NoError(t, CheckRunning(nil, "scan"))
}

func TestShardedMutex_ShardAssignment(t *testing.T) {
	sm := NewShardedMutex[int64](8)
	assert.Equal(t, 8, sm.NumShards())

	counts := make([]int, sm.NumShards())
	for k := int64(0); k < 8000; k++ {
		s := sm.Shard(k)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 8)
		assert.Equal(t, s, sm.Shard(k))
		counts[s]++
	}
	for _, c := range counts {
		assert.Greater(t, c, 500)
	}
	assert.Equal(t, 16, NewShardedMutex[string](0).NumShards())
}

func TestShardedMutex_ReducedContention(t *testing.T) {
	sm := NewShardedMutex[int64](16)
	totals := make([]int, 16)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := int64(worker*100 + j)
				shard := sm.Lock(key)
				totals[shard]++
				sm.Unlock(key)
			}
		}(i)
	}
	wg.Wait()

	sum := 0
	for _, v := range totals {
		sum += v
	}
	assert.Equal(t, 3200, sum)
}
