package paged

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/23skdu/quiver/internal/memory"
)

// AtomicBitSet is a fixed size bitset whose bits may be set concurrently.
type AtomicBitSet struct {
	words []uint64
	size  int64
}

func NewAtomicBitSet(size int64) *AtomicBitSet {
	return &AtomicBitSet{words: make([]uint64, (size+63)/64), size: size}
}

// Set sets bit i and reports whether it was previously clear.
func (b *AtomicBitSet) Set(i int64) bool {
	addr := &b.words[i>>6]
	mask := uint64(1) << (uint(i) & 63)
	for {
		old := atomic.LoadUint64(addr)
		if old&mask != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return true
		}
	}
}

func (b *AtomicBitSet) Get(i int64) bool {
	if i < 0 || i >= b.size {
		return false
	}
	return atomic.LoadUint64(&b.words[i>>6])&(uint64(1)<<(uint(i)&63)) != 0
}

func (b *AtomicBitSet) Size() int64 {
	return b.size
}

// Cardinality counts set bits. It is not linearizable with concurrent Set.
func (b *AtomicBitSet) Cardinality() int64 {
	var n int
	for i := range b.words {
		n += bits.OnesCount64(atomic.LoadUint64(&b.words[i]))
	}
	return int64(n)
}

// Words exposes the backing words. Callers must not mutate them.
func (b *AtomicBitSet) Words() []uint64 {
	return b.words
}

// ForEach calls fn with every set bit in ascending order.
func (b *AtomicBitSet) ForEach(fn func(i int64) bool) {
	forEachWord(b.words, 0, fn)
}

func forEachWord(words []uint64, base int64, fn func(i int64) bool) bool {
	for w, word := range words {
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(base + int64(w)*64 + int64(tz)) {
				return false
			}
			word &= word - 1
		}
	}
	return true
}

const (
	bitPageShift = 16
	bitPageBits  = 1 << bitPageShift
	bitPageWords = bitPageBits / 64
)

// GrowingBitSet is an unbounded bitset whose bits may be set concurrently.
// Pages of 64Ki bits are created on first use; the page table grows under a
// lock and is published copy-on-write so readers stay lock free.
type GrowingBitSet struct {
	mu      sync.Mutex
	table   atomic.Pointer[[]*[bitPageWords]uint64]
	tracker *memory.Tracker
	pages   atomic.Int64
}

func NewGrowingBitSet(tracker *memory.Tracker) *GrowingBitSet {
	g := &GrowingBitSet{tracker: tracker}
	empty := make([]*[bitPageWords]uint64, 0)
	g.table.Store(&empty)
	return g
}

// Set sets bit i and reports whether it was previously clear.
func (g *GrowingBitSet) Set(i int64) bool {
	page := g.page(i >> bitPageShift)
	local := i & (bitPageBits - 1)
	addr := &page[local>>6]
	mask := uint64(1) << (uint(local) & 63)
	for {
		old := atomic.LoadUint64(addr)
		if old&mask != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return true
		}
	}
}

func (g *GrowingBitSet) Get(i int64) bool {
	if i < 0 {
		return false
	}
	table := *g.table.Load()
	p := i >> bitPageShift
	if p >= int64(len(table)) || table[p] == nil {
		return false
	}
	local := i & (bitPageBits - 1)
	return atomic.LoadUint64(&table[p][local>>6])&(uint64(1)<<(uint(local)&63)) != 0
}

func (g *GrowingBitSet) page(p int64) *[bitPageWords]uint64 {
	table := *g.table.Load()
	if p < int64(len(table)) && table[p] != nil {
		return table[p]
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	table = *g.table.Load()
	if p < int64(len(table)) && table[p] != nil {
		return table[p]
	}
	next := make([]*[bitPageWords]uint64, max(int64(len(table)), p+1))
	copy(next, table)
	page := new([bitPageWords]uint64)
	next[p] = page
	g.table.Store(&next)
	g.pages.Add(1)
	g.tracker.Add(bitPageWords * 8)
	return page
}

// Capacity returns one past the highest addressable bit of allocated pages.
func (g *GrowingBitSet) Capacity() int64 {
	return int64(len(*g.table.Load())) << bitPageShift
}

func (g *GrowingBitSet) Cardinality() int64 {
	var n int
	for _, page := range *g.table.Load() {
		if page == nil {
			continue
		}
		for i := range page {
			n += bits.OnesCount64(atomic.LoadUint64(&page[i]))
		}
	}
	return int64(n)
}

// ForEach calls fn with every set bit in ascending order until fn returns false.
func (g *GrowingBitSet) ForEach(fn func(i int64) bool) {
	for p, page := range *g.table.Load() {
		if page == nil {
			continue
		}
		if !forEachWord(page[:], int64(p)<<bitPageShift, fn) {
			return
		}
	}
}

// Release drops all pages.
func (g *GrowingBitSet) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	empty := make([]*[bitPageWords]uint64, 0)
	g.table.Store(&empty)
	g.tracker.Remove(g.pages.Swap(0) * bitPageWords * 8)
}
