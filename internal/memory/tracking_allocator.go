package memory

import (
	"sync/atomic"

	"github.com/23skdu/quiver/internal/metrics"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TrackingAllocator wraps an Arrow allocator and reports every buffer it hands
// out to a Tracker, so record batches read by edge sources count towards the
// load's memory footprint.
type TrackingAllocator struct {
	memory.Allocator
	tracker *Tracker

	BytesAllocated atomic.Int64
	BytesFreed     atomic.Int64
}

// NewTrackingAllocator wraps base, defaulting to memory.DefaultAllocator.
func NewTrackingAllocator(base memory.Allocator, tracker *Tracker) *TrackingAllocator {
	if base == nil {
		base = memory.DefaultAllocator
	}
	return &TrackingAllocator{Allocator: base, tracker: tracker}
}

func (a *TrackingAllocator) Allocate(size int) []byte {
	a.BytesAllocated.Add(int64(size))
	a.tracker.Add(int64(size))
	metrics.AllocatorBytesAllocatedTotal.Add(float64(size))
	return a.Allocator.Allocate(size)
}

func (a *TrackingAllocator) Reallocate(size int, b []byte) []byte {
	delta := int64(size - len(b))
	if delta > 0 {
		a.BytesAllocated.Add(delta)
		a.tracker.Add(delta)
		metrics.AllocatorBytesAllocatedTotal.Add(float64(delta))
	} else if delta < 0 {
		a.BytesFreed.Add(-delta)
		a.tracker.Remove(-delta)
		metrics.AllocatorBytesFreedTotal.Add(float64(-delta))
	}
	return a.Allocator.Reallocate(size, b)
}

func (a *TrackingAllocator) Free(b []byte) {
	a.BytesFreed.Add(int64(len(b)))
	a.tracker.Remove(int64(len(b)))
	metrics.AllocatorBytesFreedTotal.Add(float64(len(b)))
	a.Allocator.Free(b)
}

// Live returns allocated minus freed bytes.
func (a *TrackingAllocator) Live() int64 {
	return a.BytesAllocated.Load() - a.BytesFreed.Load()
}

var _ memory.Allocator = (*TrackingAllocator)(nil)
