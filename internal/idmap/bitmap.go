package idmap

import (
	"context"
	"math/bits"
	"sort"

	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/memory"
	"github.com/23skdu/quiver/internal/paged"
)

// rankBlockShift sets the number of words summarized by one rank entry.
const rankBlockShift = 6

// BitIDMap marks every original id in a bitset over [0, highest] and maps an
// id to its rank among set bits. Mapped ids therefore ascend with original
// ids. Translation to the original id selects the n-th set bit, starting
// from a per block running count.
type BitIDMap struct {
	labeled
	bits      *paged.AtomicBitSet
	ranks     []int64
	nodeCount int64
	highest   int64
	tracker   *memory.Tracker
}

var _ IDMap = (*BitIDMap)(nil)

// NewBitIDMap marks originals in parallel and computes block ranks. Duplicate
// ids are counted once.
func NewBitIDMap(ctx context.Context, originals *paged.Array[int64], highest int64, workers int, tracker *memory.Tracker) (*BitIDMap, error) {
	set := paged.NewAtomicBitSet(highest + 1)
	err := concurrency.ParallelRange(ctx, workers, originals.Size(), func(ctx context.Context, start, end int64) error {
		if err := concurrency.CheckRunning(concurrency.FromContext(ctx), "idmap.bitmap.build"); err != nil {
			return err
		}
		for i := start; i < end; i++ {
			set.Set(originals.Get(i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	words := set.Words()
	ranks := make([]int64, (len(words)+1<<rankBlockShift-1)>>rankBlockShift)
	var count int64
	for w, word := range words {
		if w&(1<<rankBlockShift-1) == 0 {
			ranks[w>>rankBlockShift] = count
		}
		count += int64(bits.OnesCount64(word))
	}
	m := &BitIDMap{
		labeled:   labeled{labels: NewAllNodesLabels(count)},
		bits:      set,
		ranks:     ranks,
		nodeCount: count,
		highest:   highest,
		tracker:   tracker,
	}
	tracker.Add(m.bitsSize())
	return m, nil
}

func (m *BitIDMap) ToMapped(original int64) int64 {
	if !m.bits.Get(original) {
		return NotFound
	}
	words := m.bits.Words()
	word := original >> 6
	block := word >> rankBlockShift
	rank := m.ranks[block]
	for w := block << rankBlockShift; w < word; w++ {
		rank += int64(bits.OnesCount64(words[w]))
	}
	below := words[word] & (uint64(1)<<(uint(original)&63) - 1)
	return rank + int64(bits.OnesCount64(below))
}

func (m *BitIDMap) ToOriginal(mapped int64) int64 {
	if mapped < 0 || mapped >= m.nodeCount {
		return NotFound
	}
	block := sort.Search(len(m.ranks), func(i int) bool { return m.ranks[i] > mapped }) - 1
	rank := m.ranks[block]
	words := m.bits.Words()
	for w := block << rankBlockShift; w < len(words); w++ {
		c := int64(bits.OnesCount64(words[w]))
		if rank+c > mapped {
			return int64(w)<<6 + int64(selectBit(words[w], int(mapped-rank)))
		}
		rank += c
	}
	return NotFound
}

// selectBit returns the position of the k-th (zero based) set bit of word.
func selectBit(word uint64, k int) int {
	for ; k > 0; k-- {
		word &= word - 1
	}
	return bits.TrailingZeros64(word)
}

func (m *BitIDMap) Contains(original int64) bool {
	return m.bits.Get(original)
}

func (m *BitIDMap) NodeCount() int64 {
	return m.nodeCount
}

func (m *BitIDMap) HighestOriginalID() int64 {
	return m.highest
}

func (m *BitIDMap) Type() Type {
	return Bitmap
}

func (m *BitIDMap) RootIDMap() IDMap {
	return m
}

func (m *BitIDMap) ToRootNodeID(mapped int64) int64 {
	return mapped
}

func (m *BitIDMap) WithFilteredLabels(labels []string) (IDMap, error) {
	return filterLabels(m, m.labels, labels)
}

func (m *BitIDMap) bitsSize() int64 {
	return int64(len(m.bits.Words())+len(m.ranks)) * 8
}

func (m *BitIDMap) SizeInBytes() int64 {
	return m.bitsSize() + m.labels.SizeInBytes()
}
