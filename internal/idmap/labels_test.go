package idmap

import (
	"testing"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labeledNodes returns ids 0..9 where even ids carry Even and multiples of
// three carry Three.
func labeledNodes() []node {
	var nodes []node
	for id := int64(0); id < 10; id++ {
		var labels []string
		if id%2 == 0 {
			labels = append(labels, "Even")
		}
		if id%3 == 0 {
			labels = append(labels, "Three")
		}
		nodes = append(nodes, node{id: id, labels: labels})
	}
	return nodes
}

func TestLabels_WithoutLabels(t *testing.T) {
	m := buildSequential(t, Array, ids(1, 2, 3))
	assert.Empty(t, m.AvailableLabels())
	assert.Empty(t, m.Labels(0))
	assert.True(t, m.HasLabel(0, AllNodes))
	assert.False(t, m.HasLabel(0, "Person"))
	assert.False(t, m.HasLabel(3, AllNodes))

	same, err := m.WithFilteredLabels([]string{AllNodes})
	require.NoError(t, err)
	assert.Same(t, m, same)
}

func TestLabels_SingleLabelCarriesNoBitmap(t *testing.T) {
	m := buildSequential(t, Bitmap, []node{{1, []string{"Person"}}, {2, []string{"Person"}}})
	bm := m.(*BitIDMap)
	assert.Equal(t, singleLabelKind, bm.labels.kind)
	assert.Zero(t, bm.labels.SizeInBytes())
	assert.Equal(t, []string{"Person"}, m.Labels(1))
	assert.True(t, m.HasLabel(0, "Person"))

	same, err := m.WithFilteredLabels([]string{"Person"})
	require.NoError(t, err)
	assert.Same(t, m, same)
}

func TestLabels_MultipleLabels(t *testing.T) {
	for _, typ := range []Type{Array, Bitmap, HighLimit} {
		t.Run(typ.String(), func(t *testing.T) {
			m := buildSequential(t, typ, labeledNodes())
			assert.Equal(t, []string{"Even", "Three"}, m.AvailableLabels())
			assert.Equal(t, []string{"Even", "Three"}, m.Labels(m.ToMapped(6)))
			assert.Equal(t, []string{"Three"}, m.Labels(m.ToMapped(9)))
			assert.Empty(t, m.Labels(m.ToMapped(5)))
			assert.True(t, m.HasLabel(m.ToMapped(4), "Even"))
			assert.False(t, m.HasLabel(m.ToMapped(4), "Three"))
			assert.False(t, m.HasLabel(NotFound, "Even"))
		})
	}
}

func TestFilteredIDMap(t *testing.T) {
	root := buildSequential(t, Bitmap, labeledNodes())

	filtered, err := root.WithFilteredLabels([]string{"Even"})
	require.NoError(t, err)
	f := filtered.(*FilteredIDMap)

	assert.Equal(t, int64(5), f.NodeCount())
	assert.Equal(t, int64(8), f.HighestOriginalID())
	assert.Same(t, root, f.RootIDMap())
	assert.Equal(t, Bitmap, f.Type())
	for i, id := range []int64{0, 2, 4, 6, 8} {
		assert.Equal(t, int64(i), f.ToMapped(id))
		assert.Equal(t, id, f.ToOriginal(int64(i)))
		assert.Equal(t, root.ToMapped(id), f.ToRootNodeID(int64(i)))
	}
	assert.Equal(t, NotFound, f.ToMapped(3))
	assert.False(t, f.Contains(3))
	assert.Equal(t, NotFound, f.ToOriginal(5))
	assert.Equal(t, NotFound, f.ToRootNodeID(-1))

	mapper := f.FilteredMapper()
	assert.Equal(t, int64(3), mapper(root.ToMapped(6)))
	assert.Equal(t, NotFound, mapper(root.ToMapped(9)))

	assert.Equal(t, []string{"Even"}, f.Labels(f.ToMapped(6)))
	assert.False(t, f.HasLabel(f.ToMapped(6), "Three"), "labels outside the filter are hidden")
	assert.True(t, f.HasLabel(f.ToMapped(6), AllNodes))
	assert.Equal(t, []string{"Even"}, f.AvailableLabels())

	_, err = f.WithFilteredLabels([]string{"Three"})
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}

func TestFilteredIDMap_Narrowing(t *testing.T) {
	root := buildSequential(t, Array, labeledNodes())

	either, err := root.WithFilteredLabels([]string{"Three", "Even"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), either.NodeCount(), "0 2 3 4 6 8 9")

	narrowed, err := either.WithFilteredLabels([]string{"Three"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), narrowed.NodeCount())
	assert.Same(t, root, narrowed.RootIDMap())
	for _, id := range []int64{0, 3, 6, 9} {
		mapped := narrowed.ToMapped(id)
		require.NotEqual(t, NotFound, mapped)
		assert.Equal(t, id, narrowed.ToOriginal(mapped))
		assert.Equal(t, root.ToMapped(id), narrowed.ToRootNodeID(mapped))
	}

	_, err = root.WithFilteredLabels([]string{"Missing"})
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
	_, err = root.WithFilteredLabels(nil)
	assert.ErrorIs(t, err, qerrors.ErrInvalidConfig)
}
