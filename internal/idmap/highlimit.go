package idmap

import (
	"cmp"
	"context"
	"slices"

	"github.com/23skdu/quiver/internal/codec"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// HighLimitIDMap handles original ids of any magnitude. A ShardedMap assigns
// each original id an intermediate id and an inner ArrayIDMap maps the
// intermediate ids to mapped ids, which ascend with the original ids.
// Translation is a lookup in each.
type HighLimitIDMap struct {
	toIntermediate *ShardedMap
	originals      *paged.Array[int64]
	inner          *ArrayIDMap
	highest        int64
}

var _ IDMap = (*HighLimitIDMap)(nil)

// NewHighLimitIDMap freezes ids. No further ids may be added to it.
func NewHighLimitIDMap(ctx context.Context, ids *ShardedMap, workers int, tracker *memory.Tracker) (*HighLimitIDMap, error) {
	originals, err := ids.Freeze(ctx, workers, tracker)
	if err != nil {
		return nil, err
	}
	count := originals.Size()

	order := make([]int64, count)
	for i := range order {
		order[i] = int64(i)
	}
	slices.SortFunc(order, func(a, b int64) int {
		return cmp.Compare(originals.Get(a), originals.Get(b))
	})
	graphIDs := paged.NewArray[int64](count, tracker)
	for mapped, intermediate := range order {
		graphIDs.Set(int64(mapped), intermediate)
	}

	inner, err := NewArrayIDMap(ctx, graphIDs, count-1, workers, tracker)
	if err != nil {
		return nil, err
	}
	return &HighLimitIDMap{
		toIntermediate: ids,
		originals:      originals,
		inner:          inner,
		highest:        ids.HighestOriginalID(),
	}, nil
}

func (m *HighLimitIDMap) ToMapped(original int64) int64 {
	intermediate := m.toIntermediate.Get(original)
	if intermediate == NotFound {
		return NotFound
	}
	return m.inner.ToMapped(intermediate)
}

func (m *HighLimitIDMap) ToOriginal(mapped int64) int64 {
	intermediate := m.inner.ToOriginal(mapped)
	if intermediate == NotFound {
		return NotFound
	}
	return m.originals.Get(intermediate)
}

// IntermediateMapper translates intermediate ids into mapped ids, for data
// that was keyed by intermediate id before the map was built.
func (m *HighLimitIDMap) IntermediateMapper() codec.ValueMapper {
	return m.inner.ToMapped
}

func (m *HighLimitIDMap) Contains(original int64) bool {
	return m.toIntermediate.Get(original) != NotFound
}

func (m *HighLimitIDMap) NodeCount() int64 {
	return m.inner.NodeCount()
}

func (m *HighLimitIDMap) HighestOriginalID() int64 {
	return m.highest
}

func (m *HighLimitIDMap) Type() Type {
	return HighLimit
}

func (m *HighLimitIDMap) Labels(mapped int64) []string {
	return m.inner.Labels(mapped)
}

func (m *HighLimitIDMap) HasLabel(mapped int64, label string) bool {
	return m.inner.HasLabel(mapped, label)
}

func (m *HighLimitIDMap) AvailableLabels() []string {
	return m.inner.AvailableLabels()
}

func (m *HighLimitIDMap) RootIDMap() IDMap {
	return m
}

func (m *HighLimitIDMap) ToRootNodeID(mapped int64) int64 {
	return mapped
}

func (m *HighLimitIDMap) WithFilteredLabels(labels []string) (IDMap, error) {
	return filterLabels(m, m.inner.labels, labels)
}

func (m *HighLimitIDMap) setLabels(info *LabelInformation) {
	m.inner.labels = info
}

func (m *HighLimitIDMap) SizeInBytes() int64 {
	return m.toIntermediate.SizeInBytes() + m.originals.SizeInBytes() + m.inner.SizeInBytes()
}
