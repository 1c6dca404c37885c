package batch

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_FillAndReset(t *testing.T) {
	b := NewBuffer(3, true)
	assert.False(t, b.IsFull())
	b.Add(1, 2)
	b.AddWithRef(3, 4, 7)
	b.AddWithRef(5, 6, 8)
	assert.True(t, b.IsFull())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, b.Pairs())
	assert.Equal(t, []int64{NoRef, 7, 8}, b.Refs())

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Pairs())
	assert.Equal(t, 3, b.Capacity())
}

func TestBuffer_WithoutRefs(t *testing.T) {
	b := NewBuffer(2, false)
	b.AddWithRef(1, 2, 9)
	assert.False(t, b.HasRefs())
	assert.Nil(t, b.Refs())
}

func TestBuffer_SortBySourceIsStable(t *testing.T) {
	b := NewBuffer(8, true)
	b.AddWithRef(300, 1, 0)
	b.AddWithRef(2, 5, 1)
	b.AddWithRef(300, 2, 2)
	b.AddWithRef(0, 9, 3)
	b.AddWithRef(2, 4, 4)
	b.AddWithRef(70000, 1, 5)

	b.SortBySource()
	assert.Equal(t, []int64{0, 9, 2, 5, 2, 4, 300, 1, 300, 2, 70000, 1}, b.Pairs())
	assert.Equal(t, []int64{3, 1, 4, 0, 2, 5}, b.Refs())
}

func TestBuffer_SortByTargetSwapsPairs(t *testing.T) {
	b := NewBuffer(4, false)
	b.Add(1, 9)
	b.Add(2, 3)
	b.Add(3, 9)

	b.SortByTarget()
	assert.Equal(t, []int64{3, 2, 9, 1, 9, 3}, b.Pairs())

	var g Groups
	b.Group(&g)
	require.Equal(t, 2, g.Count)
	assert.Equal(t, []int64{3, 9}, g.Keys)
	assert.Equal(t, []int64{2}, g.TargetsOf(0))
	assert.Equal(t, []int64{1, 3}, g.TargetsOf(1))
}

func TestBuffer_Group(t *testing.T) {
	b := NewBuffer(6, true)
	b.AddWithRef(4, 1, 10)
	b.AddWithRef(0, 2, 11)
	b.AddWithRef(4, 3, 12)
	b.AddWithRef(0, 4, 13)
	b.SortBySource()

	var g Groups
	b.Group(&g)
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, []int64{0, 4}, g.Keys)
	assert.Equal(t, []int{0, 2, 4}, g.Offsets)
	assert.Equal(t, []int64{2, 4, 1, 3}, g.Targets)
	assert.Equal(t, []int64{11, 13, 10, 12}, g.Refs)

	b.Reset()
	b.Group(&g)
	assert.Zero(t, g.Count)
	assert.Equal(t, []int{0}, g.Offsets)
}

func TestRadixSort_ZeroKeysNeedNoPasses(t *testing.T) {
	pairs := []int64{0, 3, 0, 1}
	RadixSort(pairs, nil, make([]int64, 4), nil, 2)
	assert.Equal(t, []int64{0, 3, 0, 1}, pairs)
}

func TestScanStateString(t *testing.T) {
	assert.Equal(t, "SCANNING", Scanning.String())
	assert.Equal(t, "BUFFER_FULL", BufferFull.String())
	assert.Equal(t, "FLUSHING", Flushing.String())
	assert.Equal(t, "DONE", Done.String())
	assert.Equal(t, "UNKNOWN", ScanState(42).String())
}

func TestRadixSortProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("radix sort orders keys and keeps pairs intact", prop.ForAll(
		func(keys []int64) bool {
			n := len(keys)
			b := NewBuffer(max(n, 1), true)
			type rel struct{ key, target, ref int64 }
			want := make([]rel, n)
			for i, k := range keys {
				b.AddWithRef(k, int64(i), int64(i)*10)
				want[i] = rel{k, int64(i), int64(i) * 10}
			}
			slices.SortStableFunc(want, func(x, y rel) int {
				switch {
				case x.key < y.key:
					return -1
				case x.key > y.key:
					return 1
				}
				return 0
			})

			b.SortBySource()
			pairs, refs := b.Pairs(), b.Refs()
			for i, w := range want {
				if pairs[2*i] != w.key || pairs[2*i+1] != w.target || refs[i] != w.ref {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 1<<40)),
	))

	properties.TestingRun(t)
}
