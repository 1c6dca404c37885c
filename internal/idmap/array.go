package idmap

import (
	"context"

	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// ArrayIDMap stores the original id of every mapped id in a dense array and
// the reverse direction in a sparse array over the original id range. Mapped
// ids follow the order of the dense array, which NodesBuilder sorts so that
// mapped ids ascend with original ids.
type ArrayIDMap struct {
	labeled
	graphIDs    *paged.Array[int64]
	nodeToGraph *paged.SparseArray[int64]
	highest     int64
}

var _ IDMap = (*ArrayIDMap)(nil)

// NewArrayIDMap builds the reverse index of graphIDs in parallel. graphIDs
// must hold unique, non negative ids no larger than highest.
func NewArrayIDMap(ctx context.Context, graphIDs *paged.Array[int64], highest int64, workers int, tracker *memory.Tracker) (*ArrayIDMap, error) {
	nodeToGraph := paged.NewSparseArray[int64](highest+1, NotFound, tracker)
	err := concurrency.ParallelRange(ctx, workers, graphIDs.Size(), func(ctx context.Context, start, end int64) error {
		if err := concurrency.CheckRunning(concurrency.FromContext(ctx), "idmap.array.build"); err != nil {
			return err
		}
		for mapped := start; mapped < end; mapped++ {
			nodeToGraph.Set(graphIDs.Get(mapped), mapped)
		}
		return nil
	})
	if err != nil {
		nodeToGraph.Release()
		return nil, err
	}
	return &ArrayIDMap{
		labeled:     labeled{labels: NewAllNodesLabels(graphIDs.Size())},
		graphIDs:    graphIDs,
		nodeToGraph: nodeToGraph,
		highest:     highest,
	}, nil
}

func (m *ArrayIDMap) ToMapped(original int64) int64 {
	return m.nodeToGraph.Get(original)
}

func (m *ArrayIDMap) ToOriginal(mapped int64) int64 {
	if mapped < 0 || mapped >= m.graphIDs.Size() {
		return NotFound
	}
	return m.graphIDs.Get(mapped)
}

func (m *ArrayIDMap) Contains(original int64) bool {
	return m.ToMapped(original) != NotFound
}

func (m *ArrayIDMap) NodeCount() int64 {
	return m.graphIDs.Size()
}

func (m *ArrayIDMap) HighestOriginalID() int64 {
	return m.highest
}

func (m *ArrayIDMap) Type() Type {
	return Array
}

func (m *ArrayIDMap) RootIDMap() IDMap {
	return m
}

func (m *ArrayIDMap) ToRootNodeID(mapped int64) int64 {
	return mapped
}

func (m *ArrayIDMap) WithFilteredLabels(labels []string) (IDMap, error) {
	return filterLabels(m, m.labels, labels)
}

func (m *ArrayIDMap) SizeInBytes() int64 {
	return m.graphIDs.SizeInBytes() + m.nodeToGraph.SizeInBytes() + m.labels.SizeInBytes()
}
