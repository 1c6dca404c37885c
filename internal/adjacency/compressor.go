package adjacency

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/codec"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// Compressor writes the final form of one node's list at a time. Each flush
// task owns one compressor and with it one arena allocator per column, so
// compressors never contend with each other.
type Compressor interface {
	// Compress sorts, aggregates and encodes targets and the parallel
	// property columns of node, and returns the resulting degree. The
	// slices are used as scratch space.
	Compress(node int64, targets []int64, properties [][]int64) (int, error)
	Close()
}

// FactoryConfig configures a CompressorFactory.
type FactoryConfig struct {
	Compression  Compression
	NodeCount    int64
	Aggregations []aggregation.Aggregation
	// Deduplicate collapses parallel relationships when there are no
	// property columns to aggregate.
	Deduplicate bool
	PageShift   int
	Tracker     *memory.Tracker
}

// CompressorFactory hands out compressors for the flush phase and assembles
// their output into an AdjacencyList and one PropertyList per column.
type CompressorFactory struct {
	compression  Compression
	nodeCount    int64
	aggregations []aggregation.Aggregation
	merge        bool
	tracker      *memory.Tracker

	arena           *memory.Arena
	propertyArenas  []*memory.Arena
	degrees         *paged.Array[int32]
	offsets         *paged.Array[uint64]
	propertyOffsets []*paged.Array[uint64]

	relationships atomic.Int64
	open          atomic.Int64
	built         atomic.Bool
}

func NewCompressorFactory(cfg FactoryConfig) *CompressorFactory {
	f := &CompressorFactory{
		compression:  cfg.Compression,
		nodeCount:    cfg.NodeCount,
		aggregations: cfg.Aggregations,
		merge:        aggregation.AnyMerges(cfg.Aggregations) || (len(cfg.Aggregations) == 0 && cfg.Deduplicate),
		tracker:      cfg.Tracker,
		arena:        memory.NewArena(cfg.PageShift, cfg.Tracker),
		degrees:      paged.NewArray[int32](cfg.NodeCount, cfg.Tracker),
		offsets:      paged.NewArray[uint64](cfg.NodeCount, cfg.Tracker),
	}
	for range cfg.Aggregations {
		f.propertyArenas = append(f.propertyArenas, memory.NewArena(cfg.PageShift, cfg.Tracker))
		f.propertyOffsets = append(f.propertyOffsets, paged.NewArray[uint64](cfg.NodeCount, cfg.Tracker))
	}
	return f
}

// NewCompressor returns a compressor of the configured variant.
func (f *CompressorFactory) NewCompressor() (Compressor, error) {
	if f.built.Load() {
		return nil, qerrors.NewMisuseError("compressor.new", "factory already built")
	}
	allocator, err := f.arena.NewAllocator()
	if err != nil {
		return nil, err
	}
	base := baseCompressor{factory: f, allocator: allocator}
	for _, arena := range f.propertyArenas {
		pa, err := arena.NewAllocator()
		if err != nil {
			base.closeAllocators()
			return nil, err
		}
		base.propertyAllocators = append(base.propertyAllocators, pa)
	}
	f.open.Add(1)

	switch f.compression {
	case Packed:
		return &packedCompressor{baseCompressor: base}, nil
	case Uncompressed:
		return &uncompressedCompressor{baseCompressor: base}, nil
	default:
		return &varLongCompressor{baseCompressor: base}, nil
	}
}

// RelationshipCount returns the relationships compressed so far.
func (f *CompressorFactory) RelationshipCount() int64 {
	return f.relationships.Load()
}

// Build freezes the arenas and returns the final lists. It fails while a
// compressor is still open and when called twice.
func (f *CompressorFactory) Build() (*AdjacencyList, []*PropertyList, error) {
	if open := f.open.Load(); open > 0 {
		return nil, nil, qerrors.NewMisuseError("compressor.build", "compressors still open").
			WithContext("open", open)
	}
	if !f.built.CompareAndSwap(false, true) {
		return nil, nil, qerrors.NewMisuseError("compressor.build", "factory already built")
	}
	pages, err := f.arena.Build()
	if err != nil {
		return nil, nil, err
	}
	list := &AdjacencyList{
		compression:       f.compression,
		degrees:           f.degrees,
		offsets:           f.offsets,
		pages:             pages,
		nodeCount:         f.nodeCount,
		relationshipCount: f.relationships.Load(),
	}
	properties := make([]*PropertyList, len(f.propertyArenas))
	for i, arena := range f.propertyArenas {
		propertyPages, err := arena.Build()
		if err != nil {
			return nil, nil, err
		}
		properties[i] = &PropertyList{
			degrees: f.degrees,
			offsets: f.propertyOffsets[i],
			pages:   propertyPages,
		}
	}
	return list, properties, nil
}

type baseCompressor struct {
	factory            *CompressorFactory
	allocator          *memory.Allocator
	propertyAllocators []*memory.Allocator
	aggregator         aggregation.Aggregator
	scratch            []byte
	closed             bool
}

// prepare sorts and aggregates targets and returns the surviving length.
func (c *baseCompressor) prepare(node int64, targets []int64, properties [][]int64) (int, error) {
	f := c.factory
	if c.closed {
		return 0, qerrors.NewMisuseError("compressor.compress", "compressor closed")
	}
	if node < 0 || node >= f.nodeCount {
		return 0, qerrors.NewMisuseError("compressor.compress", "node id out of range").
			WithContext("node", node).
			WithContext("node_count", f.nodeCount)
	}
	c.aggregator.Aggregate(targets, properties, f.aggregations, f.merge)
	if f.merge {
		return aggregation.Compact(targets, properties), nil
	}
	return len(targets), nil
}

// finish records degree, address and properties of node.
func (c *baseCompressor) finish(node int64, degree int, address uint64, properties [][]int64) error {
	f := c.factory
	if cap(c.scratch) < degree*8 {
		c.scratch = make([]byte, nextPowerOfTwoInt(degree*8))
	}
	buf := c.scratch[:degree*8]
	for i, column := range properties {
		for j, v := range column[:degree] {
			binary.LittleEndian.PutUint64(buf[j*8:], uint64(v))
		}
		addr, err := c.propertyAllocators[i].Write(buf)
		if err != nil {
			return err
		}
		f.propertyOffsets[i].Set(node, addr)
	}
	f.degrees.Set(node, int32(degree))
	f.offsets.Set(node, address)
	f.relationships.Add(int64(degree))
	return nil
}

func (c *baseCompressor) closeAllocators() {
	c.allocator.Close()
	for _, pa := range c.propertyAllocators {
		pa.Close()
	}
}

// Close releases the compressor's allocators. Closing twice is a no-op.
func (c *baseCompressor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.closeAllocators()
	c.factory.open.Add(-1)
}

type varLongCompressor struct {
	baseCompressor
}

func (c *varLongCompressor) Compress(node int64, targets []int64, properties [][]int64) (int, error) {
	degree, err := c.prepare(node, targets, properties)
	if err != nil {
		return 0, err
	}
	deltas := targets[:degree]
	codec.DeltaEncodeSorted(deltas, false)
	addr, buf, err := c.allocator.Allocate(codec.EncodedSize(deltas))
	if err != nil {
		return 0, err
	}
	codec.EncodeVLongs(buf, deltas)
	return degree, c.finish(node, degree, addr, properties)
}

type packedCompressor struct {
	baseCompressor
	deltas []uint64
}

func (c *packedCompressor) Compress(node int64, targets []int64, properties [][]int64) (int, error) {
	degree, err := c.prepare(node, targets, properties)
	if err != nil {
		return 0, err
	}
	codec.DeltaEncodeSorted(targets[:degree], false)
	if cap(c.deltas) < degree {
		c.deltas = make([]uint64, nextPowerOfTwoInt(degree))
	}
	deltas := c.deltas[:degree]
	for i, v := range targets[:degree] {
		deltas[i] = uint64(v)
	}
	addr, buf, err := c.allocator.Allocate(codec.PackedSize(deltas))
	if err != nil {
		return 0, err
	}
	codec.PackBlocks(buf, deltas)
	return degree, c.finish(node, degree, addr, properties)
}

type uncompressedCompressor struct {
	baseCompressor
}

func (c *uncompressedCompressor) Compress(node int64, targets []int64, properties [][]int64) (int, error) {
	degree, err := c.prepare(node, targets, properties)
	if err != nil {
		return 0, err
	}
	addr, buf, err := c.allocator.Allocate(degree * 8)
	if err != nil {
		return 0, err
	}
	for i, v := range targets[:degree] {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return degree, c.finish(node, degree, addr, properties)
}
