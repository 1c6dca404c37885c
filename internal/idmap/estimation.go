package idmap

import (
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// ArrayLimit is the exclusive upper bound of original ids the Array and
// Bitmap strategies address directly. Larger ids need HighLimit.
const ArrayLimit int64 = 1 << 36

// SelectType picks the strategy with the smaller upper memory estimate for
// nodeCount ids no larger than highest.
func SelectType(nodeCount, highest int64) Type {
	if highest >= ArrayLimit {
		return HighLimit
	}
	if EstimateMemory(Bitmap, nodeCount, highest).Max < EstimateMemory(Array, nodeCount, highest).Max {
		return Bitmap
	}
	return Array
}

// EstimateMemory returns the memory range a map of type t needs for nodeCount
// ids no larger than highest. Auto estimates the type SelectType picks.
func EstimateMemory(t Type, nodeCount, highest int64) memory.Range {
	switch t {
	case Array:
		forward := nodeCount * 8
		pageBytes := int64(paged.PageSize) * 8
		table := int64(paged.PageCount(highest+1)) * 8
		// Dense ids touch the fewest reverse pages, scattered ids one page each.
		densePages := int64(paged.PageCount(nodeCount))
		scatteredPages := min(int64(paged.PageCount(highest+1)), nodeCount)
		return memory.Range{
			Min: forward + table + densePages*pageBytes,
			Max: forward + table + scatteredPages*pageBytes,
		}
	case Bitmap:
		words := (highest + 64) / 64
		ranks := (words + 63) / 64
		return memory.Of((words + ranks) * 8)
	case HighLimit:
		inner := EstimateMemory(Array, nodeCount, nodeCount-1)
		return inner.Add(memory.Of(nodeCount * (shardedEntryBytes + 8 + 8)))
	default:
		return EstimateMemory(SelectType(nodeCount, highest), nodeCount, highest)
	}
}
