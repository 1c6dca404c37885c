package idmap

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/23skdu/quiver/internal/concurrency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// AllNodes matches every node of a map, labeled or not.
const AllNodes = "__ALL__"

type labelKind int

const (
	allNodesKind labelKind = iota
	singleLabelKind
	multiLabelKind
)

// LabelInformation is the frozen label membership of a map, keyed by mapped
// id. Maps without labels, or whose nodes all share one label, carry no
// bitmaps at all.
type LabelInformation struct {
	kind      labelKind
	names     []string
	bitmaps   map[string]*roaring64.Bitmap
	nodeCount int64
}

// NewAllNodesLabels returns label information for a map without labels.
func NewAllNodesLabels(nodeCount int64) *LabelInformation {
	return &LabelInformation{kind: allNodesKind, nodeCount: nodeCount}
}

func (l *LabelInformation) valid(mapped int64) bool {
	return mapped >= 0 && mapped < l.nodeCount
}

// LabelsOf returns the labels of mapped in ascending name order.
func (l *LabelInformation) LabelsOf(mapped int64) []string {
	if !l.valid(mapped) {
		return nil
	}
	switch l.kind {
	case allNodesKind:
		return nil
	case singleLabelKind:
		return l.names
	}
	var out []string
	for _, name := range l.names {
		if l.bitmaps[name].Contains(uint64(mapped)) {
			out = append(out, name)
		}
	}
	return out
}

func (l *LabelInformation) HasLabel(mapped int64, label string) bool {
	if !l.valid(mapped) {
		return false
	}
	if label == AllNodes {
		return true
	}
	switch l.kind {
	case allNodesKind:
		return false
	case singleLabelKind:
		return label == l.names[0]
	}
	bm, ok := l.bitmaps[label]
	return ok && bm.Contains(uint64(mapped))
}

// Available returns every label observed, sorted.
func (l *LabelInformation) Available() []string {
	return slices.Clone(l.names)
}

// NodesWith returns the mapped ids carrying any of labels. A nil bitmap means
// every node matches.
func (l *LabelInformation) NodesWith(labels []string) (*roaring64.Bitmap, error) {
	if len(labels) == 0 {
		return nil, qerrors.NewValidationError("idmap.filter", "no labels given")
	}
	for _, label := range labels {
		if label == AllNodes {
			return nil, nil
		}
		if !slices.Contains(l.names, label) {
			return nil, unknownLabelError(label, l.names)
		}
	}
	if l.kind == singleLabelKind {
		return nil, nil
	}
	union := roaring64.New()
	for _, label := range labels {
		union.Or(l.bitmaps[label])
	}
	return union, nil
}

func (l *LabelInformation) SizeInBytes() int64 {
	var n int64
	for _, bm := range l.bitmaps {
		n += int64(bm.GetSizeInBytes())
	}
	return n
}

// LabelBuilder records label membership during ingestion, keyed by the
// position at which a node was added. Writers never block each other once a
// label's bitset exists.
type LabelBuilder struct {
	mu      sync.RWMutex
	bitsets map[string]*paged.GrowingBitSet
	tracker *memory.Tracker
}

func NewLabelBuilder(tracker *memory.Tracker) *LabelBuilder {
	return &LabelBuilder{bitsets: make(map[string]*paged.GrowingBitSet), tracker: tracker}
}

// Add records that the node added at position carries labels.
func (b *LabelBuilder) Add(position int64, labels ...string) {
	for _, label := range labels {
		if label == AllNodes {
			continue
		}
		b.bitset(label).Set(position)
	}
}

func (b *LabelBuilder) bitset(label string) *paged.GrowingBitSet {
	b.mu.RLock()
	bs, ok := b.bitsets[label]
	b.mu.RUnlock()
	if ok {
		return bs
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bs, ok = b.bitsets[label]; !ok {
		bs = paged.NewGrowingBitSet(b.tracker)
		b.bitsets[label] = bs
	}
	return bs
}

// Build freezes the recorded labels. translate maps an ingestion position to
// its mapped id; positions translating to NotFound are skipped.
func (b *LabelBuilder) Build(ctx context.Context, workers int, nodeCount int64, translate func(position int64) int64) (*LabelInformation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.bitsets) == 0 {
		return NewAllNodesLabels(nodeCount), nil
	}
	names := make([]string, 0, len(b.bitsets))
	for name := range b.bitsets {
		names = append(names, name)
	}
	slices.Sort(names)

	if len(names) == 1 && b.bitsets[names[0]].Cardinality() == nodeCount {
		b.bitsets[names[0]].Release()
		return &LabelInformation{kind: singleLabelKind, names: names, nodeCount: nodeCount}, nil
	}

	bitmaps := make([]*roaring64.Bitmap, len(names))
	tasks := make([]concurrency.Task, len(names))
	for i, name := range names {
		bs := b.bitsets[name]
		tasks[i] = func(ctx context.Context) error {
			bm := roaring64.New()
			bs.ForEach(func(position int64) bool {
				if mapped := translate(position); mapped != NotFound {
					bm.Add(uint64(mapped))
				}
				return true
			})
			bm.RunOptimize()
			bs.Release()
			bitmaps[i] = bm
			return nil
		}
	}
	if err := concurrency.RunWithConcurrency(ctx, workers, tasks); err != nil {
		return nil, err
	}

	info := &LabelInformation{
		kind:      multiLabelKind,
		names:     names,
		bitmaps:   make(map[string]*roaring64.Bitmap, len(names)),
		nodeCount: nodeCount,
	}
	for i, name := range names {
		info.bitmaps[name] = bitmaps[i]
	}
	return info, nil
}

func unknownLabelError(label string, available []string) error {
	return qerrors.NewValidationError("idmap.filter", fmt.Sprintf("unknown label %q", label)).
		WithContext("available", available)
}
