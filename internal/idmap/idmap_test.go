package idmap

import (
	"context"
	"sync"
	"testing"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	id     int64
	labels []string
}

func buildSequential(t *testing.T, typ Type, nodes []node) IDMap {
	t.Helper()
	b := NewNodesBuilder(BuilderConfig{Type: typ, Concurrency: 2, BatchSize: 3, Tracker: memory.NewTracker(), Logger: zerolog.Nop()})
	local := b.NewLocal()
	for _, n := range nodes {
		require.NoError(t, local.AddNode(n.id, n.labels...))
	}
	local.Close()
	m, err := b.Build(context.Background())
	require.NoError(t, err)
	return m
}

func ids(values ...int64) []node {
	out := make([]node, len(values))
	for i, v := range values {
		out[i] = node{id: v}
	}
	return out
}

func TestIDMap_Strategies(t *testing.T) {
	input := []int64{5, 100, 3, 70000, 42}
	for _, typ := range []Type{Array, Bitmap, HighLimit} {
		t.Run(typ.String(), func(t *testing.T) {
			m := buildSequential(t, typ, ids(input...))

			assert.Equal(t, typ, m.Type())
			assert.Equal(t, int64(5), m.NodeCount())
			assert.Equal(t, int64(70000), m.HighestOriginalID())
			for _, id := range input {
				mapped := m.ToMapped(id)
				require.NotEqual(t, NotFound, mapped)
				assert.Less(t, mapped, int64(5))
				assert.Equal(t, id, m.ToOriginal(mapped))
				assert.True(t, m.Contains(id))
			}
			for _, missing := range []int64{0, 4, 69999, 1 << 40} {
				assert.Equal(t, NotFound, m.ToMapped(missing), "id %d", missing)
				assert.False(t, m.Contains(missing))
			}
			assert.Equal(t, NotFound, m.ToOriginal(-1))
			assert.Equal(t, NotFound, m.ToOriginal(5))
			assert.Same(t, m, m.RootIDMap())
			assert.Equal(t, int64(3), m.ToRootNodeID(3))
			assert.Positive(t, m.SizeInBytes())
		})
	}
}

func TestIDMap_MappedOrder(t *testing.T) {
	input := ids(5, 100, 3, 70000, 42)

	for _, typ := range []Type{Array, Bitmap, HighLimit} {
		m := buildSequential(t, typ, input)
		for i, id := range []int64{3, 5, 42, 100, 70000} {
			assert.Equal(t, int64(i), m.ToMapped(id), "%s ascends with original ids", typ)
		}
	}
}

func TestArrayIDMap_SortedUnderConcurrentProducers(t *testing.T) {
	input := []int64{50, 10, 40, 20, 30, 0, 70, 60}
	for _, dedupe := range []bool{false, true} {
		b := NewNodesBuilder(BuilderConfig{Type: Array, Deduplicate: dedupe, Concurrency: 4, BatchSize: 1, Tracker: memory.NewTracker(), Logger: zerolog.Nop()})
		var wg sync.WaitGroup
		for _, id := range input {
			local := b.NewLocal()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer local.Close()
				assert.NoError(t, local.AddNode(id))
			}()
		}
		wg.Wait()

		m, err := b.Build(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(len(input)), m.NodeCount())
		mapped := make([]int64, m.NodeCount())
		for i := range mapped {
			mapped[i] = m.ToOriginal(int64(i))
		}
		assert.Equal(t, []int64{0, 10, 20, 30, 40, 50, 60, 70}, mapped, "deduplicate=%v", dedupe)
	}
}

func TestArrayIDMap_RejectsDuplicatesWithoutDeduplication(t *testing.T) {
	b := NewNodesBuilder(BuilderConfig{Type: Array, Logger: zerolog.Nop()})
	local := b.NewLocal()
	require.NoError(t, local.AddNode(3))
	require.NoError(t, local.AddNode(3))
	local.Close()

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}

func TestHighLimit_ArbitraryIDs(t *testing.T) {
	m := buildSequential(t, HighLimit, ids(1<<62, -7, 0))
	assert.Equal(t, int64(0), m.ToMapped(-7))
	assert.Equal(t, int64(1), m.ToMapped(0))
	assert.Equal(t, int64(2), m.ToMapped(1<<62))
	assert.Equal(t, int64(1<<62), m.ToOriginal(2))
	assert.Equal(t, int64(1<<62), m.HighestOriginalID())

	hm := m.(*HighLimitIDMap)
	mapper := hm.IntermediateMapper()
	assert.Equal(t, int64(2), mapper(0), "first id seen gets intermediate id 0")
}

func TestBitIDMap_RanksAcrossBlocks(t *testing.T) {
	var input []int64
	for id := int64(0); id < 20000; id += 7 {
		input = append(input, id)
	}
	m := buildSequential(t, Bitmap, ids(input...))
	require.Equal(t, int64(len(input)), m.NodeCount())
	for i, id := range input {
		require.Equal(t, int64(i), m.ToMapped(id))
		require.Equal(t, id, m.ToOriginal(int64(i)))
	}
	assert.Equal(t, NotFound, m.ToMapped(8))
}

func TestNodesBuilder_ConcurrentDeduplication(t *testing.T) {
	for _, typ := range []Type{Auto, Array, Bitmap, HighLimit} {
		t.Run(typ.String(), func(t *testing.T) {
			b := NewNodesBuilder(BuilderConfig{Type: typ, Deduplicate: true, Concurrency: 4, BatchSize: 128, Logger: zerolog.Nop()})
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				local := b.NewLocal()
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer local.Close()
					for id := int64(0); id < 10_000; id++ {
						assert.NoError(t, local.AddNode(id*3, "Node"))
					}
				}()
			}
			wg.Wait()

			m, err := b.Build(context.Background())
			require.NoError(t, err)
			require.Equal(t, int64(10_000), m.NodeCount())
			seen := make(map[int64]bool)
			for id := int64(0); id < 10_000; id++ {
				mapped := m.ToMapped(id * 3)
				require.False(t, seen[mapped], "mapped ids are unique")
				seen[mapped] = true
				require.Equal(t, id*3, m.ToOriginal(mapped))
				require.True(t, m.HasLabel(mapped, "Node"))
			}
			assert.Equal(t, []string{"Node"}, m.AvailableLabels())
		})
	}
}

func TestNodesBuilder_Misuse(t *testing.T) {
	b := NewNodesBuilder(BuilderConfig{Type: Array, Logger: zerolog.Nop()})
	local := b.NewLocal()
	require.NoError(t, local.AddNode(1))

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, qerrors.ErrBuildMisuse, "local builder still open")

	local.Close()
	local.Close()
	assert.ErrorIs(t, local.AddNode(2), qerrors.ErrBuildMisuse)

	m, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.NodeCount())

	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, qerrors.ErrBuildMisuse)
}

func TestNodesBuilder_RejectsUnaddressableIDs(t *testing.T) {
	array := NewNodesBuilder(BuilderConfig{Type: Array}).NewLocal()
	assert.ErrorIs(t, array.AddNode(-1), qerrors.ErrInvalidConfig)

	bitmap := NewNodesBuilder(BuilderConfig{Type: Bitmap}).NewLocal()
	assert.ErrorIs(t, bitmap.AddNode(ArrayLimit), qerrors.ErrCapacityOverflow)

	high := NewNodesBuilder(BuilderConfig{Type: HighLimit}).NewLocal()
	assert.NoError(t, high.AddNode(-1))
	assert.NoError(t, high.AddNode(ArrayLimit))

	auto := NewNodesBuilder(BuilderConfig{Type: Auto}).NewLocal()
	assert.NoError(t, auto.AddNode(-1))
}

func TestNodesBuilder_AutoSelectsType(t *testing.T) {
	dense := buildSequential(t, Auto, ids(0, 1, 2, 3))
	assert.Equal(t, Bitmap, dense.Type())

	huge := buildSequential(t, Auto, ids(1, ArrayLimit+5))
	assert.Equal(t, HighLimit, huge.Type())

	negative := buildSequential(t, Auto, ids(-3, 4))
	assert.Equal(t, HighLimit, negative.Type())
	assert.Equal(t, int64(-3), negative.ToOriginal(negative.ToMapped(-3)))
	assert.True(t, negative.Contains(4))

	empty := buildSequential(t, Auto, nil)
	assert.Zero(t, empty.NodeCount())
	assert.Equal(t, NotFound, empty.HighestOriginalID())
}

func TestSelectTypeAndEstimates(t *testing.T) {
	assert.Equal(t, Bitmap, SelectType(1_000_000, 999_999))
	assert.Equal(t, Array, SelectType(10, 10_000_000_000))
	assert.Equal(t, HighLimit, SelectType(10, ArrayLimit))

	for _, typ := range []Type{Array, Bitmap, HighLimit} {
		small := EstimateMemory(typ, 1000, 100_000)
		large := EstimateMemory(typ, 100_000, 10_000_000)
		assert.LessOrEqual(t, small.Min, small.Max, typ.String())
		assert.Greater(t, large.Max, small.Max, typ.String())
	}
	assert.Equal(t, EstimateMemory(Bitmap, 1000, 999), EstimateMemory(Auto, 1000, 999))
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{Auto, Array, Bitmap, HighLimit} {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	var typ Type
	require.NoError(t, typ.Decode("HIGHLIMIT"))
	assert.Equal(t, HighLimit, typ)
	assert.ErrorIs(t, typ.Decode("hash"), qerrors.ErrInvalidConfig)
}

func TestShardedMap_ConcurrentAdd(t *testing.T) {
	m := NewShardedMap(8)
	var wg sync.WaitGroup
	var mu sync.Mutex
	assigned := make(map[int64]int)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(0); id < 5000; id++ {
				if intermediate, added := m.Add(id << 20); added {
					mu.Lock()
					assigned[intermediate]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), m.Size())
	assert.Len(t, assigned, 5000)
	assert.Equal(t, int64(4999<<20), m.HighestOriginalID())
	originals, err := m.Freeze(context.Background(), 4, nil)
	require.NoError(t, err)
	for id := int64(0); id < 5000; id++ {
		assert.Equal(t, id<<20, originals.Get(m.Get(id<<20)))
	}
	assert.Equal(t, NotFound, m.Get(1))
}
