package adjacency

import (
	"encoding/binary"
	"math"

	"github.com/23skdu/quiver/internal/codec"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// NotFound is returned by cursors when no further target matches.
const NotFound int64 = -1

// AdjacencyList is the immutable CSR form of a relationship type: a degree and
// an arena address per node, and the arena holding each node's encoded,
// ascending targets.
type AdjacencyList struct {
	compression       Compression
	degrees           *paged.Array[int32]
	offsets           *paged.Array[uint64]
	pages             *memory.Pages
	nodeCount         int64
	relationshipCount int64
}

func (l *AdjacencyList) NodeCount() int64 {
	return l.nodeCount
}

func (l *AdjacencyList) RelationshipCount() int64 {
	return l.relationshipCount
}

func (l *AdjacencyList) Compression() Compression {
	return l.compression
}

// Degree returns the number of targets of node.
func (l *AdjacencyList) Degree(node int64) int {
	if node < 0 || node >= l.nodeCount {
		return 0
	}
	return int(l.degrees.Get(node))
}

// AdjacencyCursor returns a cursor positioned at the first target of node.
func (l *AdjacencyList) AdjacencyCursor(node int64) *Cursor {
	return l.MappedCursor(node, nil)
}

// MappedCursor returns a cursor whose targets are passed through mapper.
func (l *AdjacencyList) MappedCursor(node int64, mapper codec.ValueMapper) *Cursor {
	c := l.RawCursor(mapper)
	c.Init(node)
	return c
}

// RawCursor returns an unpositioned cursor to be reused through Init.
func (l *AdjacencyList) RawCursor(mapper codec.ValueMapper) *Cursor {
	c := &Cursor{list: l, mapper: mapper}
	switch l.compression {
	case Packed:
		c.decoder = &packedDecoder{}
	case Uncompressed:
		c.decoder = &uncompressedDecoder{}
	default:
		c.decoder = &varLongDecoder{}
	}
	return c
}

// SizeInBytes returns the memory held by the list.
func (l *AdjacencyList) SizeInBytes() int64 {
	return l.degrees.SizeInBytes() + l.offsets.SizeInBytes() + l.pages.SizeInBytes()
}

// Release returns all memory of the list to its tracker. The list must not be
// used afterwards.
func (l *AdjacencyList) Release() {
	l.degrees.Release()
	l.offsets.Release()
	l.pages.Release()
}

// PropertyList holds one property column parallel to an AdjacencyList.
type PropertyList struct {
	degrees *paged.Array[int32]
	offsets *paged.Array[uint64]
	pages   *memory.Pages
}

// PropertyCursor returns the property values of node in target order.
func (p *PropertyList) PropertyCursor(node int64) *PropertyCursor {
	c := &PropertyCursor{list: p}
	c.Init(node)
	return c
}

func (p *PropertyList) SizeInBytes() int64 {
	return p.offsets.SizeInBytes() + p.pages.SizeInBytes()
}

// Release returns the column's memory. Degrees are owned by the adjacency list.
func (p *PropertyList) Release() {
	p.offsets.Release()
	p.pages.Release()
}

// PropertyCursor iterates the float64 property values of one node.
type PropertyCursor struct {
	list      *PropertyList
	data      []byte
	remaining int
}

// Init positions the cursor at the first value of node.
func (c *PropertyCursor) Init(node int64) {
	if node < 0 || node >= c.list.degrees.Size() {
		c.data, c.remaining = nil, 0
		return
	}
	c.remaining = int(c.list.degrees.Get(node))
	if c.remaining == 0 {
		c.data = nil
		return
	}
	c.data = c.list.pages.Slice(c.list.offsets.Get(node))
}

func (c *PropertyCursor) HasNext() bool {
	return c.remaining > 0
}

func (c *PropertyCursor) Remaining() int {
	return c.remaining
}

// Next returns the next value, or NaN when exhausted.
func (c *PropertyCursor) Next() float64 {
	if c.remaining == 0 {
		return math.NaN()
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(c.data))
	c.data = c.data[8:]
	c.remaining--
	return v
}
