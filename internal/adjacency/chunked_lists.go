package adjacency

import (
	"math"
	"math/bits"

	"github.com/23skdu/quiver/internal/aggregation"
	"github.com/23skdu/quiver/internal/codec"
	qerrors "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/memory"
)

const (
	slotPageShift = 12
	slotPageSize  = 1 << slotPageShift
	slotPageMask  = slotPageSize - 1

	// MaxListBytes bounds a single node's encoded targets and property columns.
	MaxListBytes = math.MaxInt32

	minListBytes = 16
)

// slot accumulates the relationships of one node. Targets are stored as
// zig-zag coded deltas against the previously written target.
type slot struct {
	targets    []byte
	position   int
	lastValue  int64
	length     int
	properties [][]int64
}

func (s *slot) sizeInBytes() int64 {
	n := int64(cap(s.targets))
	for _, column := range s.properties {
		n += int64(cap(column)) * 8
	}
	return n
}

// ChunkedAdjacencyLists is the accumulator of one buffer page: a sparse,
// page indexed table of per node slots keyed by page local id. It is written
// by the single holder of the page lock.
type ChunkedAdjacencyLists struct {
	pages         [][]*slot
	propertyCount int
	tracker       *memory.Tracker
	maxBytes      int
}

func NewChunkedAdjacencyLists(propertyCount int, tracker *memory.Tracker) *ChunkedAdjacencyLists {
	return &ChunkedAdjacencyLists{
		propertyCount: propertyCount,
		tracker:       tracker,
		maxBytes:      MaxListBytes,
	}
}

func (c *ChunkedAdjacencyLists) slot(local int64) *slot {
	p := int(local >> slotPageShift)
	if p >= len(c.pages) {
		grown := make([][]*slot, max(p+1, 2*len(c.pages)))
		copy(grown, c.pages)
		c.pages = grown
	}
	if c.pages[p] == nil {
		c.pages[p] = make([]*slot, slotPageSize)
	}
	s := c.pages[p][local&slotPageMask]
	if s == nil {
		s = &slot{}
		if c.propertyCount > 0 {
			s.properties = make([][]int64, c.propertyCount)
		}
		c.pages[p][local&slotPageMask] = s
	}
	return s
}

// Add appends targets, and the property values at the same positions, to the
// list of local. Targets equal to aggregation.Mark are skipped together with
// their property values.
func (c *ChunkedAdjacencyLists) Add(local int64, targets []int64, properties [][]int64) error {
	s := c.slot(local)

	required := s.position
	count := 0
	last := s.lastValue
	for _, t := range targets {
		if t == aggregation.Mark {
			continue
		}
		required += codec.VLongSize(codec.ZigZag(t - last))
		last = t
		count++
	}
	if count == 0 {
		return nil
	}
	if err := c.ensureTargetCapacity(s, required); err != nil {
		return err
	}

	buf := s.targets
	pos := s.position
	last = s.lastValue
	for _, t := range targets {
		if t == aggregation.Mark {
			continue
		}
		pos += codec.PutVLong(buf[pos:], codec.ZigZag(t-last))
		last = t
	}
	s.position = pos
	s.lastValue = last

	for i := range s.properties {
		if err := c.appendProperties(s, i, targets, properties[i], count); err != nil {
			return err
		}
	}
	s.length += count
	return nil
}

func (c *ChunkedAdjacencyLists) ensureTargetCapacity(s *slot, required int) error {
	if required <= len(s.targets) {
		return nil
	}
	newCap, err := c.grownCapacity(required, "adjacency.grow_targets")
	if err != nil {
		return err
	}
	grown := make([]byte, newCap)
	copy(grown, s.targets[:s.position])
	c.tracker.Add(int64(newCap - len(s.targets)))
	s.targets = grown
	return nil
}

func (c *ChunkedAdjacencyLists) appendProperties(s *slot, column int, targets, values []int64, count int) error {
	current := s.properties[column]
	required := s.length + count
	if required > len(current) {
		newCap, err := c.grownCapacity(required*8, "adjacency.grow_properties")
		if err != nil {
			return err
		}
		grown := make([]int64, newCap/8)
		copy(grown, current[:s.length])
		c.tracker.Add(int64(len(grown)-len(current)) * 8)
		current = grown
		s.properties[column] = current
	}
	pos := s.length
	for i, t := range targets {
		if t == aggregation.Mark {
			continue
		}
		current[pos] = values[i]
		pos++
	}
	return nil
}

// grownCapacity returns the next power of two at or above required, capped
// at maxBytes, or a capacity error when required itself exceeds maxBytes.
func (c *ChunkedAdjacencyLists) grownCapacity(required int, operation string) (int, error) {
	if required > c.maxBytes {
		return 0, qerrors.NewCapacityError(operation, int64(required), int64(c.maxBytes))
	}
	newCap := max(nextPowerOfTwoInt(required), minListBytes)
	return min(newCap, c.maxBytes), nil
}

func nextPowerOfTwoInt(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

// Length returns the number of targets held for local.
func (c *ChunkedAdjacencyLists) Length(local int64) int {
	p := int(local >> slotPageShift)
	if p >= len(c.pages) || c.pages[p] == nil {
		return 0
	}
	if s := c.pages[p][local&slotPageMask]; s != nil {
		return s.length
	}
	return 0
}

// ListConsumer receives one node's encoded targets, its property columns and
// the number of targets.
type ListConsumer func(local int64, targets []byte, properties [][]int64, length int) error

// Consume hands every non-empty list to consumer in ascending local id order
// and releases each slot after it was handed over. Slots are released even
// after consumer failed; the first error is returned.
func (c *ChunkedAdjacencyLists) Consume(consumer ListConsumer) error {
	var firstErr error
	for p, page := range c.pages {
		if page == nil {
			continue
		}
		for i, s := range page {
			if s == nil {
				continue
			}
			if firstErr == nil && s.length > 0 {
				local := int64(p)<<slotPageShift | int64(i)
				properties := s.properties
				for col := range properties {
					properties[col] = properties[col][:s.length]
				}
				firstErr = consumer(local, s.targets[:s.position], properties, s.length)
			}
			c.tracker.Remove(s.sizeInBytes())
			page[i] = nil
		}
		c.pages[p] = nil
	}
	c.pages = nil
	return firstErr
}
