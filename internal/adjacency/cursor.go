package adjacency

import (
	"encoding/binary"

	"github.com/23skdu/quiver/internal/codec"
)

// decoder produces the targets of one list a block at a time.
type decoder interface {
	reset(data []byte, count int)
	// fill decodes the next len(dst) targets, at most one block.
	fill(dst []int64)
}

// Cursor iterates the ascending targets of one node, decoding a block of up
// to 64 targets at a time. Cursors are not safe for concurrent use and can be
// repositioned with Init.
type Cursor struct {
	list      *AdjacencyList
	decoder   decoder
	mapper    codec.ValueMapper
	block     [codec.BlockSize]int64
	blockPos  int
	blockLen  int
	remaining int
	undecoded int
}

// Init positions the cursor at the first target of node.
func (c *Cursor) Init(node int64) {
	c.blockPos, c.blockLen = 0, 0
	degree := c.list.Degree(node)
	c.remaining, c.undecoded = degree, degree
	if degree == 0 {
		c.decoder.reset(nil, 0)
		return
	}
	c.decoder.reset(c.list.pages.Slice(c.list.offsets.Get(node)), degree)
}

func (c *Cursor) refill() {
	n := min(c.undecoded, codec.BlockSize)
	c.decoder.fill(c.block[:n])
	if c.mapper != nil {
		for i := 0; i < n; i++ {
			c.block[i] = c.mapper(c.block[i])
		}
	}
	c.undecoded -= n
	c.blockPos, c.blockLen = 0, n
}

// HasNext reports whether another target is available.
func (c *Cursor) HasNext() bool {
	return c.remaining > 0
}

// Remaining returns the number of targets not yet returned.
func (c *Cursor) Remaining() int {
	return c.remaining
}

// Next returns the next target, or NotFound when exhausted.
func (c *Cursor) Next() int64 {
	if c.remaining == 0 {
		return NotFound
	}
	if c.blockPos == c.blockLen {
		c.refill()
	}
	v := c.block[c.blockPos]
	c.blockPos++
	c.remaining--
	return v
}

// Peek returns the next target without consuming it, or NotFound.
func (c *Cursor) Peek() int64 {
	if c.remaining == 0 {
		return NotFound
	}
	if c.blockPos == c.blockLen {
		c.refill()
	}
	return c.block[c.blockPos]
}

// SkipUntil consumes targets up to and including the first one strictly
// greater than target and returns it, or NotFound.
func (c *Cursor) SkipUntil(target int64) int64 {
	for c.remaining > 0 {
		if v := c.Next(); v > target {
			return v
		}
	}
	return NotFound
}

// Advance consumes targets up to and including the first one greater than or
// equal to target and returns it, or NotFound.
func (c *Cursor) Advance(target int64) int64 {
	for c.remaining > 0 {
		if v := c.Next(); v >= target {
			return v
		}
	}
	return NotFound
}

// AdvanceBy skips n targets and returns the one after them, or NotFound.
func (c *Cursor) AdvanceBy(n int) int64 {
	if n >= c.remaining {
		for c.remaining > 0 {
			c.Next()
		}
		return NotFound
	}
	for ; n > 0; n-- {
		c.Next()
	}
	return c.Next()
}

type varLongDecoder struct {
	data []byte
	last int64
}

func (d *varLongDecoder) reset(data []byte, _ int) {
	d.data, d.last = data, 0
}

func (d *varLongDecoder) fill(dst []int64) {
	for i := range dst {
		v, n := codec.VLong(d.data)
		d.data = d.data[n:]
		d.last += int64(v)
		dst[i] = d.last
	}
}

type packedDecoder struct {
	header []byte
	data   []byte
	last   int64
	values [codec.BlockSize]uint64
}

func (d *packedDecoder) reset(data []byte, count int) {
	d.header, d.data, d.last = nil, nil, 0
	if count == 0 {
		return
	}
	header := codec.HeaderSize(count)
	d.header = data[:header]
	d.data = data[header:]
}

func (d *packedDecoder) fill(dst []int64) {
	width := int(d.header[0])
	d.header = d.header[1:]
	n := codec.Unpack(d.values[:], d.data, width)
	d.data = d.data[n:]
	for i := range dst {
		d.last += int64(d.values[i])
		dst[i] = d.last
	}
}

type uncompressedDecoder struct {
	data []byte
}

func (d *uncompressedDecoder) reset(data []byte, _ int) {
	d.data = data
}

func (d *uncompressedDecoder) fill(dst []int64) {
	for i := range dst {
		dst[i] = int64(binary.LittleEndian.Uint64(d.data[i*8:]))
	}
	d.data = d.data[len(dst)*8:]
}
