// Package paged provides arrays and bitsets addressed by int64 indices that
// are stored as fixed size pages instead of one contiguous allocation.
package paged

import (
	"unsafe"

	"github.com/23skdu/quiver/internal/memory"
)

const (
	PageShift = 14
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1
)

// Element is the set of types paged arrays hold.
type Element interface {
	~int32 | ~int64 | ~uint64 | ~float64
}

// PageCount returns the number of pages needed for size elements.
func PageCount(size int64) int {
	return int((size + PageSize - 1) >> PageShift)
}

// Array is a fixed size paged array. Distinct indices may be written
// concurrently.
type Array[T Element] struct {
	pages   [][]T
	size    int64
	tracker *memory.Tracker
}

// NewArray allocates an array of size zero values.
func NewArray[T Element](size int64, tracker *memory.Tracker) *Array[T] {
	n := PageCount(size)
	pages := make([][]T, n)
	for i := range pages {
		length := PageSize
		if i == n-1 {
			length = int(size - int64(i)<<PageShift)
		}
		pages[i] = make([]T, length)
	}
	a := &Array[T]{pages: pages, size: size, tracker: tracker}
	tracker.Add(a.SizeInBytes())
	return a
}

func (a *Array[T]) Get(i int64) T {
	return a.pages[i>>PageShift][i&PageMask]
}

func (a *Array[T]) Set(i int64, v T) {
	a.pages[i>>PageShift][i&PageMask] = v
}

func (a *Array[T]) Size() int64 {
	return a.size
}

// Fill sets every element to v.
func (a *Array[T]) Fill(v T) {
	for _, page := range a.pages {
		for i := range page {
			page[i] = v
		}
	}
}

// Page returns the backing slice of page p.
func (a *Array[T]) Page(p int) []T {
	return a.pages[p]
}

// PageCount returns the number of backing pages.
func (a *Array[T]) PageCount() int {
	return len(a.pages)
}

// SizeInBytes returns the memory held by the element pages.
func (a *Array[T]) SizeInBytes() int64 {
	var zero T
	return a.size * int64(unsafe.Sizeof(zero))
}

// Release drops the pages and reports the freed bytes.
func (a *Array[T]) Release() {
	if a.pages == nil {
		return
	}
	a.tracker.Remove(a.SizeInBytes())
	a.pages = nil
}
