package paged

import (
	"sync/atomic"
	"unsafe"

	"github.com/23skdu/quiver/internal/memory"
)

// SparseArray is a fixed capacity array whose pages are only allocated when
// first written. Unwritten indices read as the default value. Pages are
// created with a CAS so concurrent writers never block each other.
type SparseArray[T Element] struct {
	pages        []atomic.Pointer[[]T]
	capacity     int64
	defaultValue T
	tracker      *memory.Tracker
	allocated    atomic.Int64
}

func NewSparseArray[T Element](capacity int64, defaultValue T, tracker *memory.Tracker) *SparseArray[T] {
	return &SparseArray[T]{
		pages:        make([]atomic.Pointer[[]T], PageCount(capacity)),
		capacity:     capacity,
		defaultValue: defaultValue,
		tracker:      tracker,
	}
}

func (s *SparseArray[T]) Get(i int64) T {
	if i < 0 || i >= s.capacity {
		return s.defaultValue
	}
	page := s.pages[i>>PageShift].Load()
	if page == nil {
		return s.defaultValue
	}
	return (*page)[i&PageMask]
}

// Set writes v at i. Writes to distinct indices are safe concurrently.
func (s *SparseArray[T]) Set(i int64, v T) {
	(*s.page(i>>PageShift))[i&PageMask] = v
}

func (s *SparseArray[T]) page(p int64) *[]T {
	slot := &s.pages[p]
	if page := slot.Load(); page != nil {
		return page
	}
	fresh := make([]T, PageSize)
	if s.defaultValue != 0 {
		for i := range fresh {
			fresh[i] = s.defaultValue
		}
	}
	if slot.CompareAndSwap(nil, &fresh) {
		bytes := int64(len(fresh)) * sizeOf[T]()
		s.allocated.Add(bytes)
		s.tracker.Add(bytes)
		return &fresh
	}
	return slot.Load()
}

// Capacity returns the number of addressable indices.
func (s *SparseArray[T]) Capacity() int64 {
	return s.capacity
}

// SizeInBytes returns the memory held by allocated pages.
func (s *SparseArray[T]) SizeInBytes() int64 {
	return s.allocated.Load() + int64(len(s.pages))*8
}

// Release drops all pages.
func (s *SparseArray[T]) Release() {
	s.tracker.Remove(s.allocated.Swap(0))
	for i := range s.pages {
		s.pages[i].Store(nil)
	}
}

func sizeOf[T Element]() int64 {
	var zero T
	return int64(unsafe.Sizeof(zero))
}
