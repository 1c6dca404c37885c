package loading

import (
	"fmt"
	"slices"

	"github.com/23skdu/quiver/internal/adjacency"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/idmap"
)

// Graph is the immutable result of a load: the id map, the adjacency list
// and its property lists, and optionally the inverse index.
type Graph struct {
	idMap             idmap.IDMap
	orientation       Orientation
	topology          *adjacency.AdjacencyList
	properties        []*adjacency.PropertyList
	inverse           *adjacency.AdjacencyList
	inverseProperties []*adjacency.PropertyList
	keys              []string
	dropped           int64
}

func (g *Graph) IDMap() idmap.IDMap {
	return g.idMap
}

func (g *Graph) Orientation() Orientation {
	return g.orientation
}

func (g *Graph) NodeCount() int64 {
	return g.idMap.NodeCount()
}

// RelationshipCount returns the relationships stored after aggregation.
// Undirected relationships count once per direction.
func (g *Graph) RelationshipCount() int64 {
	return g.topology.RelationshipCount()
}

// DroppedRelationships returns how many relationships were discarded because
// an endpoint was not in the id map.
func (g *Graph) DroppedRelationships() int64 {
	return g.dropped
}

// Degree returns the number of neighbors of a mapped node.
func (g *Graph) Degree(node int64) int {
	return g.topology.Degree(node)
}

// AdjacencyCursor iterates the neighbors of a mapped node in ascending order.
func (g *Graph) AdjacencyCursor(node int64) *adjacency.Cursor {
	return g.topology.AdjacencyCursor(node)
}

// PropertyKeys returns the loaded property keys in column order.
func (g *Graph) PropertyKeys() []string {
	return slices.Clone(g.keys)
}

// PropertyCursor iterates the values of key parallel to AdjacencyCursor.
func (g *Graph) PropertyCursor(key string, node int64) (*adjacency.PropertyCursor, error) {
	i, err := g.column(key)
	if err != nil {
		return nil, err
	}
	return g.properties[i].PropertyCursor(node), nil
}

func (g *Graph) HasInverse() bool {
	return g.inverse != nil
}

// InverseDegree returns the degree of node in the inverse index.
func (g *Graph) InverseDegree(node int64) (int, error) {
	if g.inverse == nil {
		return 0, noInverse()
	}
	return g.inverse.Degree(node), nil
}

// InverseAdjacencyCursor iterates the neighbors of node in the inverse index.
func (g *Graph) InverseAdjacencyCursor(node int64) (*adjacency.Cursor, error) {
	if g.inverse == nil {
		return nil, noInverse()
	}
	return g.inverse.AdjacencyCursor(node), nil
}

// InversePropertyCursor iterates the values of key parallel to
// InverseAdjacencyCursor.
func (g *Graph) InversePropertyCursor(key string, node int64) (*adjacency.PropertyCursor, error) {
	if g.inverse == nil {
		return nil, noInverse()
	}
	i, err := g.column(key)
	if err != nil {
		return nil, err
	}
	return g.inverseProperties[i].PropertyCursor(node), nil
}

func (g *Graph) column(key string) (int, error) {
	i := slices.Index(g.keys, key)
	if i < 0 {
		return 0, qerrors.NewValidationError("graph.property", fmt.Sprintf("unknown property key %q", key)).
			WithContext("available", g.keys)
	}
	return i, nil
}

func noInverse() error {
	return qerrors.NewMisuseError("graph.inverse", "graph was loaded without an inverse index")
}

// SizeInBytes returns the memory held by the id map and all lists.
func (g *Graph) SizeInBytes() int64 {
	size := g.idMap.SizeInBytes() + g.topology.SizeInBytes()
	for _, p := range g.properties {
		size += p.SizeInBytes()
	}
	if g.inverse != nil {
		size += g.inverse.SizeInBytes()
		for _, p := range g.inverseProperties {
			size += p.SizeInBytes()
		}
	}
	return size
}

// Release returns the memory of all lists to their tracker. The graph must
// not be used afterwards.
func (g *Graph) Release() {
	g.topology.Release()
	for _, p := range g.properties {
		p.Release()
	}
	if g.inverse != nil {
		g.inverse.Release()
		for _, p := range g.inverseProperties {
			p.Release()
		}
	}
}

// Subgraph is the view of a graph restricted to nodes carrying some labels.
// Node ids are those of the filtered id map.
type Subgraph struct {
	graph  *Graph
	filter *idmap.FilteredIDMap
}

// WithFilteredLabels restricts the graph to the nodes carrying any of labels.
// Filtering on every available label returns a view of the whole graph.
func (g *Graph) WithFilteredLabels(labels []string) (*Subgraph, error) {
	m, err := g.idMap.WithFilteredLabels(labels)
	if err != nil {
		return nil, err
	}
	filtered, _ := m.(*idmap.FilteredIDMap)
	return &Subgraph{graph: g, filter: filtered}, nil
}

func (s *Subgraph) IDMap() idmap.IDMap {
	if s.filter == nil {
		return s.graph.idMap
	}
	return s.filter
}

func (s *Subgraph) NodeCount() int64 {
	return s.IDMap().NodeCount()
}

// ForEachNeighbor calls fn for every neighbor of node inside the view, in
// ascending order, until fn returns false.
func (s *Subgraph) ForEachNeighbor(node int64, fn func(target int64) bool) {
	if s.filter == nil {
		c := s.graph.AdjacencyCursor(node)
		for c.HasNext() {
			if !fn(c.Next()) {
				return
			}
		}
		return
	}
	root := s.filter.ToRootNodeID(node)
	if root == idmap.NotFound {
		return
	}
	c := s.graph.topology.MappedCursor(root, s.filter.FilteredMapper())
	for c.HasNext() {
		target := c.Next()
		if target == idmap.NotFound {
			continue
		}
		if !fn(target) {
			return
		}
	}
}

// Degree counts the neighbors of node inside the view.
func (s *Subgraph) Degree(node int64) int {
	degree := 0
	s.ForEachNeighbor(node, func(int64) bool {
		degree++
		return true
	})
	return degree
}
