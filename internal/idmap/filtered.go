package idmap

import (
	"slices"

	"github.com/23skdu/quiver/internal/codec"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// FilteredIDMap is the subset of a root map whose nodes carry one of a set of
// labels. Filtered ids are the ranks of the root mapped ids in the subset, so
// both directions are a bitmap rank or select away from the root map.
type FilteredIDMap struct {
	root    IDMap
	info    *LabelInformation
	nodes   *roaring64.Bitmap
	filter  []string
	highest int64
}

var _ IDMap = (*FilteredIDMap)(nil)

// filterLabels derives the map over the nodes of root carrying any of labels.
// Labels matching every node return root itself.
func filterLabels(root IDMap, info *LabelInformation, labels []string) (IDMap, error) {
	nodes, err := info.NodesWith(labels)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return root, nil
	}
	return newFilteredIDMap(root, info, nodes, labels), nil
}

func newFilteredIDMap(root IDMap, info *LabelInformation, nodes *roaring64.Bitmap, filter []string) *FilteredIDMap {
	nodes.RunOptimize()
	highest := NotFound
	it := nodes.Iterator()
	for it.HasNext() {
		highest = max(highest, root.ToOriginal(int64(it.Next())))
	}
	return &FilteredIDMap{
		root:    root,
		info:    info,
		nodes:   nodes,
		filter:  slices.Clone(filter),
		highest: highest,
	}
}

func (m *FilteredIDMap) ToMapped(original int64) int64 {
	return m.ToFilteredNodeID(m.root.ToMapped(original))
}

func (m *FilteredIDMap) ToOriginal(mapped int64) int64 {
	return m.root.ToOriginal(m.ToRootNodeID(mapped))
}

// ToFilteredNodeID translates a root mapped id into this map, or NotFound.
func (m *FilteredIDMap) ToFilteredNodeID(root int64) int64 {
	if root < 0 || !m.nodes.Contains(uint64(root)) {
		return NotFound
	}
	return int64(m.nodes.Rank(uint64(root))) - 1
}

func (m *FilteredIDMap) ToRootNodeID(mapped int64) int64 {
	if mapped < 0 || mapped >= m.NodeCount() {
		return NotFound
	}
	root, err := m.nodes.Select(uint64(mapped))
	if err != nil {
		return NotFound
	}
	return int64(root)
}

// FilteredMapper translates root mapped ids, such as decoded adjacency
// targets, into this map.
func (m *FilteredIDMap) FilteredMapper() codec.ValueMapper {
	return m.ToFilteredNodeID
}

func (m *FilteredIDMap) Contains(original int64) bool {
	return m.ToMapped(original) != NotFound
}

func (m *FilteredIDMap) NodeCount() int64 {
	return int64(m.nodes.GetCardinality())
}

func (m *FilteredIDMap) HighestOriginalID() int64 {
	return m.highest
}

func (m *FilteredIDMap) Type() Type {
	return m.root.Type()
}

func (m *FilteredIDMap) Labels(mapped int64) []string {
	var out []string
	for _, label := range m.root.Labels(m.ToRootNodeID(mapped)) {
		if slices.Contains(m.filter, label) {
			out = append(out, label)
		}
	}
	return out
}

func (m *FilteredIDMap) HasLabel(mapped int64, label string) bool {
	if label != AllNodes && !slices.Contains(m.filter, label) {
		return false
	}
	return m.root.HasLabel(m.ToRootNodeID(mapped), label)
}

func (m *FilteredIDMap) AvailableLabels() []string {
	out := slices.Clone(m.filter)
	slices.Sort(out)
	return out
}

func (m *FilteredIDMap) RootIDMap() IDMap {
	return m.root
}

// WithFilteredLabels narrows this map further. The result is still relative
// to the root map.
func (m *FilteredIDMap) WithFilteredLabels(labels []string) (IDMap, error) {
	for _, label := range labels {
		if label != AllNodes && !slices.Contains(m.filter, label) {
			return nil, unknownLabelError(label, m.filter)
		}
	}
	nodes, err := m.info.NodesWith(labels)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return m, nil
	}
	nodes.And(m.nodes)
	return newFilteredIDMap(m.root, m.info, nodes, labels), nil
}

func (m *FilteredIDMap) SizeInBytes() int64 {
	return int64(m.nodes.GetSizeInBytes())
}
