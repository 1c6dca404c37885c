package idmap

import (
	"context"
	"sync/atomic"

	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// DefaultShards is the shard count of a ShardedMap created with zero shards.
const DefaultShards = 64

// ShardedMap assigns dense intermediate ids, in order of first sight, to
// arbitrary 64 bit original ids. Keys are spread over shards by hash so
// concurrent writers rarely share a lock. Once frozen, lookups take no locks
// and no further ids may be added.
type ShardedMap struct {
	locks  *concurrency.ShardedMutex[int64]
	shards []map[int64]int64
	next   atomic.Int64
	max    atomic.Int64
	frozen atomic.Bool
}

func NewShardedMap(numShards int) *ShardedMap {
	if numShards < 1 {
		numShards = DefaultShards
	}
	m := &ShardedMap{
		locks:  concurrency.NewShardedMutex[int64](numShards),
		shards: make([]map[int64]int64, numShards),
	}
	for i := range m.shards {
		m.shards[i] = make(map[int64]int64)
	}
	m.max.Store(NotFound)
	return m
}

// Add returns the intermediate id of original, assigning the next free one on
// first sight, and whether it was newly assigned.
func (m *ShardedMap) Add(original int64) (int64, bool) {
	shard := m.locks.Lock(original)
	defer m.locks.UnlockShard(shard)

	if id, ok := m.shards[shard][original]; ok {
		return id, false
	}
	id := m.next.Add(1) - 1
	m.shards[shard][original] = id
	for {
		current := m.max.Load()
		if original <= current || m.max.CompareAndSwap(current, original) {
			break
		}
	}
	return id, true
}

// Get returns the intermediate id of original, or NotFound.
func (m *ShardedMap) Get(original int64) int64 {
	if m.frozen.Load() {
		if id, ok := m.shards[m.locks.Shard(original)][original]; ok {
			return id
		}
		return NotFound
	}
	m.locks.RLock(original)
	defer m.locks.RUnlock(original)
	if id, ok := m.shards[m.locks.Shard(original)][original]; ok {
		return id
	}
	return NotFound
}

// Size returns the number of ids assigned so far.
func (m *ShardedMap) Size() int64 {
	return m.next.Load()
}

// HighestOriginalID returns the largest original id added, or NotFound.
func (m *ShardedMap) HighestOriginalID() int64 {
	return m.max.Load()
}

// Freeze stops further additions and returns the reverse mapping,
// intermediate id to original id. Every shard is copied by a single worker
// without taking its lock. It must not run concurrently with Add.
func (m *ShardedMap) Freeze(ctx context.Context, workers int, tracker *memory.Tracker) (*paged.Array[int64], error) {
	m.frozen.Store(true)
	originals := paged.NewArray[int64](m.Size(), tracker)
	tasks := make([]concurrency.Task, len(m.shards))
	for i, entries := range m.shards {
		tasks[i] = func(context.Context) error {
			for original, id := range entries {
				originals.Set(id, original)
			}
			return nil
		}
	}
	err := concurrency.RunWithConcurrency(ctx, workers, tasks)
	if err != nil {
		originals.Release()
		return nil, err
	}
	return originals, nil
}

// SizeInBytes approximates the memory of the shard maps.
func (m *ShardedMap) SizeInBytes() int64 {
	return m.Size() * shardedEntryBytes
}

// shardedEntryBytes approximates one map entry including bucket overhead.
const shardedEntryBytes = 40
