package source

import "sync/atomic"

// MinChunkSize is the first chunk size of a growing source.
const MinChunkSize = 256

// ChunkSizer decides how many records the next chunk of a source holds.
type ChunkSizer interface {
	NextChunkSize() int
}

// GrowingChunks starts with small chunks so every worker receives records
// early, then grows them geometrically up to a maximum.
type GrowingChunks struct {
	minSize     int
	maxSize     int
	factor      float64
	currentSize atomic.Int64
}

// NewGrowingChunks returns sizes starting at minSize and multiplied by factor
// after every chunk until maxSize. A minSize above maxSize is clamped.
func NewGrowingChunks(minSize, maxSize int, factor float64) *GrowingChunks {
	if maxSize < 1 {
		maxSize = DefaultChunkSize
	}
	minSize = min(max(minSize, 1), maxSize)
	if factor < 1 {
		factor = 1
	}
	g := &GrowingChunks{minSize: minSize, maxSize: maxSize, factor: factor}
	g.currentSize.Store(int64(minSize))
	return g
}

// chunksUpTo is the sizer used by the scanning sources.
func chunksUpTo(chunkSize int) *GrowingChunks {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return NewGrowingChunks(MinChunkSize, chunkSize, 2)
}

// NextChunkSize returns the current size and advances it.
func (g *GrowingChunks) NextChunkSize() int {
	current := g.currentSize.Load()
	next := min(int64(float64(current)*g.factor), int64(g.maxSize))
	g.currentSize.Store(next)
	return int(current)
}

func (g *GrowingChunks) CurrentSize() int {
	return int(g.currentSize.Load())
}

// Reset starts over at the minimum size.
func (g *GrowingChunks) Reset() {
	g.currentSize.Store(int64(g.minSize))
}

// FixedChunks always returns the same size.
type FixedChunks int

func (f FixedChunks) NextChunkSize() int {
	return max(int(f), 1)
}
