// Package batch holds the fixed capacity relationship buffers filled by scan
// workers and the radix sort that groups them by node before they are folded
// into adjacency buffers.
package batch

import (
	"time"

	"github.com/23skdu/quiver/internal/metrics"
)

// NoRef marks a relationship without a property reference.
const NoRef int64 = -1

// Buffer is a fixed capacity batch of (source, target) pairs stored
// interleaved, with an optional parallel array of property references.
// A buffer is owned by one goroutine.
type Buffer struct {
	pairs    []int64
	refs     []int64
	length   int
	capacity int

	auxPairs []int64
	auxRefs  []int64
}

// NewBuffer creates a buffer for capacity relationships.
func NewBuffer(capacity int, withRefs bool) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer{
		pairs:    make([]int64, 2*capacity),
		capacity: capacity,
	}
	if withRefs {
		b.refs = make([]int64, capacity)
	}
	return b
}

// Add appends a relationship without a property reference.
func (b *Buffer) Add(source, target int64) {
	b.pairs[2*b.length] = source
	b.pairs[2*b.length+1] = target
	if b.refs != nil {
		b.refs[b.length] = NoRef
	}
	b.length++
}

// AddWithRef appends a relationship and its property reference.
func (b *Buffer) AddWithRef(source, target, ref int64) {
	b.pairs[2*b.length] = source
	b.pairs[2*b.length+1] = target
	if b.refs != nil {
		b.refs[b.length] = ref
	}
	b.length++
}

func (b *Buffer) IsFull() bool {
	return b.length >= b.capacity
}

func (b *Buffer) Len() int {
	return b.length
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

// HasRefs reports whether the buffer carries property references.
func (b *Buffer) HasRefs() bool {
	return b.refs != nil
}

// Pairs returns the interleaved pairs of the buffered relationships.
func (b *Buffer) Pairs() []int64 {
	return b.pairs[:2*b.length]
}

// Refs returns the property references, or nil.
func (b *Buffer) Refs() []int64 {
	if b.refs == nil {
		return nil
	}
	return b.refs[:b.length]
}

func (b *Buffer) Reset() {
	b.length = 0
}

// SortBySource sorts the buffered relationships by source id.
func (b *Buffer) SortBySource() {
	b.sort()
}

// SortByTarget swaps every pair and sorts by target id, so the grouping that
// follows yields the inverse adjacency.
func (b *Buffer) SortByTarget() {
	pairs := b.Pairs()
	for i := 0; i < len(pairs); i += 2 {
		pairs[i], pairs[i+1] = pairs[i+1], pairs[i]
	}
	b.sort()
}

func (b *Buffer) sort() {
	start := time.Now()
	if cap(b.auxPairs) < 2*b.length {
		b.auxPairs = make([]int64, 2*b.capacity)
		if b.refs != nil {
			b.auxRefs = make([]int64, b.capacity)
		}
	}
	RadixSort(b.pairs, b.refs, b.auxPairs, b.auxRefs, b.length)
	metrics.RadixSortDurationSeconds.Observe(time.Since(start).Seconds())
}
