package adjacency

import (
	"github.com/23skdu/quiver/internal/codec"
	"github.com/23skdu/quiver/internal/memory"
)

const (
	slotOverhead    = 8 + 24 + 8 + 8 + 8 + 24
	propertyColumn  = 24
	slotTableBytes  = 8
	compressedPerID = 4 + 8
)

// EstimateMemory returns the range of bytes an import of relCount
// relationships over nodeCount nodes needs: the accumulator during ingestion
// plus the compressed lists it flushes into. The minimum assumes one byte per
// delta and exact buffers, the maximum the widest deltas and buffers that
// just doubled.
func EstimateMemory(nodeCount, relCount int64, propertyCount, concurrency int) memory.Range {
	sizing := SizingFor(concurrency, nodeCount)
	pages := int64(sizing.PageCount)

	slots := nodeCount * (slotOverhead + slotTableBytes + int64(propertyCount)*propertyColumn)
	slotTables := pages * ((nodeCount/pages)/slotPageSize + 1) * 24

	bufferMin := slots + slotTables + relCount + relCount*8*int64(propertyCount)
	bufferMax := slots + slotTables + 2*relCount*codec.MaxVLongSize + 2*relCount*8*int64(propertyCount)

	compressed := EstimateCompressed(nodeCount, relCount, propertyCount)
	return memory.Range{
		Min: bufferMin + compressed.Min,
		Max: bufferMax + compressed.Max,
	}
}

// EstimateCompressed returns the footprint of the final delta coded
// adjacency lists and their property lists.
func EstimateCompressed(nodeCount, relCount int64, propertyCount int) memory.Range {
	index := nodeCount * (compressedPerID + 8*int64(propertyCount))
	properties := relCount * 8 * int64(propertyCount)
	return memory.Range{
		Min: index + properties + relCount,
		Max: index + properties + relCount*codec.MaxVLongSize + nodeCount*codec.MaxVLongSize,
	}
}
