// Package adjacency builds compressed adjacency lists: per node accumulation
// of relationships into paged buffers, followed by a flush that sorts,
// aggregates and compresses each node's targets into arena pages.
package adjacency

import (
	"math/bits"
)

// MinPageSize is the smallest number of nodes per buffer page.
const MinPageSize = 64

// Paging maps node ids to buffer pages and page local ids.
type Paging interface {
	PageID(node int64) int
	LocalID(node int64) int64
	NodeID(page int, local int64) int64
	PageCount() int
}

// knownPaging assigns contiguous id ranges of a power of two size to pages.
type knownPaging struct {
	shift uint
	mask  int64
	pages int
}

func (p knownPaging) PageID(node int64) int { return int(node >> p.shift) }
func (p knownPaging) LocalID(node int64) int64 { return node & p.mask }
func (p knownPaging) NodeID(page int, local int64) int64 { return int64(page)<<p.shift | local }
func (p knownPaging) PageCount() int { return p.pages }

// unknownPaging is used when the node count is not known up front; ids are
// spread over pages round robin.
type unknownPaging struct {
	pages int64
}

func (p unknownPaging) PageID(node int64) int { return int(node % p.pages) }
func (p unknownPaging) LocalID(node int64) int64 { return node / p.pages }
func (p unknownPaging) NodeID(page int, local int64) int64 { return local*p.pages + int64(page) }
func (p unknownPaging) PageCount() int { return int(p.pages) }

// ImportSizing is the page layout of an adjacency buffer.
type ImportSizing struct {
	PageCount int
	// PageSize is zero when the node count was unknown.
	PageSize int64
}

// SizingFor derives a page layout from the worker count and node count:
// roughly four pages per worker, each a power of two of at least MinPageSize
// nodes.
func SizingFor(concurrency int, nodeCount int64) ImportSizing {
	pages := nextPowerOfTwo(int64(max(concurrency, 1)) * 4)
	pageSize := max(nextPowerOfTwo((nodeCount+pages-1)/pages), MinPageSize)
	pageCount := max((nodeCount+pageSize-1)/pageSize, 1)
	return ImportSizing{PageCount: int(pageCount), PageSize: pageSize}
}

// UnknownSizing is the layout used when node ids are assigned while importing.
func UnknownSizing(concurrency int) ImportSizing {
	return ImportSizing{PageCount: int(nextPowerOfTwo(int64(max(concurrency, 1)) * 4))}
}

// Paging returns the id mapping for this layout.
func (s ImportSizing) Paging() Paging {
	if s.PageSize == 0 {
		return unknownPaging{pages: int64(s.PageCount)}
	}
	shift := uint(bits.TrailingZeros64(uint64(s.PageSize)))
	return knownPaging{shift: shift, mask: s.PageSize - 1, pages: s.PageCount}
}

func nextPowerOfTwo(v int64) int64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(uint64(v-1))
}
