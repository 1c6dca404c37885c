package memory

import (
	"sync/atomic"

	"github.com/23skdu/quiver/internal/metrics"
)

// Tracker accumulates the bytes held by growable buffers. Every grow reports a
// positive delta, every shrink or release a negative one. A nil *Tracker is
// valid and ignores all updates.
type Tracker struct {
	inUse atomic.Int64
	peak  atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Add records an allocation of n bytes.
func (t *Tracker) Add(n int64) {
	if t == nil || n == 0 {
		return
	}
	cur := t.inUse.Add(n)
	metrics.TrackedMemoryBytes.Add(float64(n))
	for {
		peak := t.peak.Load()
		if cur <= peak || t.peak.CompareAndSwap(peak, cur) {
			return
		}
	}
}

// Remove records the release of n bytes.
func (t *Tracker) Remove(n int64) {
	if t == nil || n == 0 {
		return
	}
	t.inUse.Add(-n)
	metrics.TrackedMemoryBytes.Sub(float64(n))
}

// InUse returns the bytes currently held.
func (t *Tracker) InUse() int64 {
	if t == nil {
		return 0
	}
	return t.inUse.Load()
}

// Peak returns the highest value InUse has reached.
func (t *Tracker) Peak() int64 {
	if t == nil {
		return 0
	}
	return t.peak.Load()
}

// Range is an estimated memory footprint in bytes.
type Range struct {
	Min int64
	Max int64
}

// Of returns a range where min and max are equal.
func Of(n int64) Range {
	return Range{Min: n, Max: n}
}

// Add sums two ranges.
func (r Range) Add(o Range) Range {
	return Range{Min: r.Min + o.Min, Max: r.Max + o.Max}
}

// Times scales both bounds.
func (r Range) Times(n int64) Range {
	return Range{Min: r.Min * n, Max: r.Max * n}
}
