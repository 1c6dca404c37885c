package memory

import (
	"sync"
	"sync/atomic"

	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/metrics"
)

const (
	// DefaultPageShift sizes arena pages at 256KiB.
	DefaultPageShift = 18
	MinPageShift     = 6
	MaxPageShift     = 30
)

// Arena is an append-only set of byte pages shared by concurrent writers.
// Each writer owns an Allocator that bump-allocates into pages it alone
// writes to; the arena lock is only taken to append a page to the page table.
// Addresses encode (pageIndex << pageShift) | offset.
type Arena struct {
	pageShift uint
	pageSize  int
	tracker   *Tracker

	mu    sync.Mutex
	pages [][]byte
	bytes int64

	openAllocators atomic.Int64
	built          atomic.Bool
}

// NewArena creates an arena with pages of 1<<pageShift bytes. Out of range
// shifts fall back to DefaultPageShift.
func NewArena(pageShift int, tracker *Tracker) *Arena {
	if pageShift < MinPageShift || pageShift > MaxPageShift {
		pageShift = DefaultPageShift
	}
	return &Arena{
		pageShift: uint(pageShift),
		pageSize:  1 << pageShift,
		tracker:   tracker,
	}
}

// PageSize returns the size of a regular page.
func (a *Arena) PageSize() int {
	return a.pageSize
}

// NewAllocator returns a writer bound to this arena. The allocator must be
// closed before Build.
func (a *Arena) NewAllocator() (*Allocator, error) {
	if a.built.Load() {
		return nil, qerrors.NewMisuseError("arena.new_allocator", "arena already built")
	}
	a.openAllocators.Add(1)
	return &Allocator{arena: a, pageIndex: -1}, nil
}

func (a *Arena) addPage(size int) (int, []byte, error) {
	page := make([]byte, size)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built.Load() {
		return 0, nil, qerrors.NewMisuseError("arena.allocate", "arena already built")
	}
	a.pages = append(a.pages, page)
	a.bytes += int64(size)
	a.tracker.Add(int64(size))

	if size > a.pageSize {
		metrics.ArenaPagesTotal.WithLabelValues("oversized").Inc()
	} else {
		metrics.ArenaPagesTotal.WithLabelValues("regular").Inc()
	}
	return len(a.pages) - 1, page, nil
}

// Build freezes the arena. It fails when an allocator is still open or the
// arena was already built.
func (a *Arena) Build() (*Pages, error) {
	if open := a.openAllocators.Load(); open > 0 {
		return nil, qerrors.NewMisuseError("arena.build", "allocators still open").
			WithContext("open", open)
	}
	if !a.built.CompareAndSwap(false, true) {
		return nil, qerrors.NewMisuseError("arena.build", "arena already built")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return &Pages{
		pages:     a.pages,
		pageShift: a.pageShift,
		pageMask:  uint64(a.pageSize - 1),
		bytes:     a.bytes,
		tracker:   a.tracker,
	}, nil
}

// Allocator is a single-writer bump allocator over arena pages.
type Allocator struct {
	arena     *Arena
	page      []byte
	pageIndex int
	offset    int
	closed    bool
}

// Allocate reserves n bytes and returns their address and backing slice.
// Requests larger than a page receive a dedicated page of exactly n bytes.
func (al *Allocator) Allocate(n int) (uint64, []byte, error) {
	if al.closed {
		return 0, nil, qerrors.NewMisuseError("allocator.allocate", "allocator closed")
	}
	a := al.arena
	if n > a.pageSize {
		idx, page, err := a.addPage(n)
		if err != nil {
			return 0, nil, err
		}
		metrics.ArenaAllocatedBytes.Add(float64(n))
		return uint64(idx) << a.pageShift, page, nil
	}
	if al.page == nil || al.offset+n > len(al.page) {
		idx, page, err := a.addPage(a.pageSize)
		if err != nil {
			return 0, nil, err
		}
		al.page = page
		al.pageIndex = idx
		al.offset = 0
	}
	addr := uint64(al.pageIndex)<<a.pageShift | uint64(al.offset)
	buf := al.page[al.offset : al.offset+n : al.offset+n]
	al.offset += n
	metrics.ArenaAllocatedBytes.Add(float64(n))
	return addr, buf, nil
}

// Write copies data into the arena and returns its address.
func (al *Allocator) Write(data []byte) (uint64, error) {
	addr, buf, err := al.Allocate(len(data))
	if err != nil {
		return 0, err
	}
	copy(buf, data)
	return addr, nil
}

// Close detaches the allocator from its arena. Closing twice is a no-op.
func (al *Allocator) Close() {
	if al.closed {
		return
	}
	al.closed = true
	al.page = nil
	al.arena.openAllocators.Add(-1)
}

// Pages is the read-only view of a built arena.
type Pages struct {
	pages     [][]byte
	pageShift uint
	pageMask  uint64
	bytes     int64
	tracker   *Tracker
}

// Slice returns the bytes from addr to the end of its page.
func (p *Pages) Slice(addr uint64) []byte {
	idx := addr >> p.pageShift
	if idx >= uint64(len(p.pages)) {
		return nil
	}
	page := p.pages[idx]
	off := addr & p.pageMask
	if off > uint64(len(page)) {
		return nil
	}
	return page[off:]
}

// PageCount returns the number of pages.
func (p *Pages) PageCount() int {
	return len(p.pages)
}

// SizeInBytes returns the total bytes held by the pages.
func (p *Pages) SizeInBytes() int64 {
	return p.bytes
}

// Release drops the pages and returns their bytes to the tracker.
func (p *Pages) Release() {
	if p.pages == nil {
		return
	}
	p.tracker.Remove(p.bytes)
	p.pages = nil
}
