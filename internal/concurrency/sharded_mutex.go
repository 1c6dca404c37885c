package concurrency

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/23skdu/quiver/internal/metrics"
	"github.com/cespare/xxhash/v2"
)

// ShardKey is the set of key types a ShardedMutex can hash.
type ShardKey interface {
	int | int32 | int64 | uint64 | string
}

// ShardedMutex spreads keys over a fixed set of RW locks. Shard exposes the
// key to shard assignment so callers can partition their own data the same way.
type ShardedMutex[T ShardKey] struct {
	shards    []sync.RWMutex
	numShards int
}

func NewShardedMutex[T ShardKey](numShards int) *ShardedMutex[T] {
	if numShards < 1 {
		numShards = 16
	}
	return &ShardedMutex[T]{
		shards:    make([]sync.RWMutex, numShards),
		numShards: numShards,
	}
}

// NumShards returns the shard count.
func (sm *ShardedMutex[T]) NumShards() int {
	return sm.numShards
}

// Shard returns the shard index of key.
func (sm *ShardedMutex[T]) Shard(key T) int {
	return int(Hash(key) % uint64(sm.numShards))
}

func (sm *ShardedMutex[T]) Lock(key T) int {
	shard := sm.Shard(key)
	sm.LockShard(shard)
	return shard
}

func (sm *ShardedMutex[T]) Unlock(key T) {
	sm.shards[sm.Shard(key)].Unlock()
}

func (sm *ShardedMutex[T]) RLock(key T) {
	sm.shards[sm.Shard(key)].RLock()
}

func (sm *ShardedMutex[T]) RUnlock(key T) {
	sm.shards[sm.Shard(key)].RUnlock()
}

// LockShard locks a shard by index, recording contention.
func (sm *ShardedMutex[T]) LockShard(shard int) {
	if sm.shards[shard].TryLock() {
		return
	}
	start := time.Now()
	sm.shards[shard].Lock()
	metrics.ShardLockWaitDuration.Observe(time.Since(start).Seconds())
}

func (sm *ShardedMutex[T]) UnlockShard(shard int) {
	sm.shards[shard].Unlock()
}

// Hash returns the xxhash of key. Integers hash their little endian bytes.
func Hash[T ShardKey](key T) uint64 {
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	default:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], toUint64(key))
		return xxhash.Sum64(buf[:])
	}
}

func toUint64[T ShardKey](key T) uint64 {
	switch k := any(key).(type) {
	case int:
		return uint64(k)
	case int32:
		return uint64(k)
	case int64:
		return uint64(k)
	case uint64:
		return k
	default:
		return 0
	}
}
