package codec

import (
	"encoding/binary"
	"math/bits"
)

// BlockSize is the number of values packed together at one bit width.
const BlockSize = 64

// BitsNeeded returns the minimum width able to represent v.
func BitsNeeded(v uint64) int {
	return 64 - bits.LeadingZeros64(v)
}

// BlockBits returns the width needed for the largest value in block.
func BlockBits(block []uint64) int {
	var or uint64
	for _, v := range block {
		or |= v
	}
	return BitsNeeded(or)
}

// Pack writes up to BlockSize values at the given width into dst as bitWidth
// little endian words and returns the bytes written (bitWidth * 8). Missing
// trailing values are written as zero.
func Pack(dst []byte, values []uint64, bitWidth int) int {
	if bitWidth == 0 {
		return 0
	}
	var words [BlockSize]uint64
	for j, v := range values {
		pos := j * bitWidth
		w, off := pos>>6, uint(pos&63)
		words[w] |= v << off
		if int(off)+bitWidth > 64 {
			words[w+1] |= v >> (64 - off)
		}
	}
	for i := 0; i < bitWidth; i++ {
		binary.LittleEndian.PutUint64(dst[i*8:], words[i])
	}
	return bitWidth * 8
}

// Unpack reads BlockSize values of the given width from src into dst and
// returns the bytes read.
func Unpack(dst []uint64, src []byte, bitWidth int) int {
	if bitWidth == 0 {
		clear(dst[:BlockSize])
		return 0
	}
	var words [BlockSize + 1]uint64
	for i := 0; i < bitWidth; i++ {
		words[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
	mask := ^uint64(0)
	if bitWidth < 64 {
		mask = 1<<uint(bitWidth) - 1
	}
	for j := 0; j < BlockSize; j++ {
		pos := j * bitWidth
		w, off := pos>>6, uint(pos&63)
		v := words[w] >> off
		if int(off)+bitWidth > 64 {
			v |= words[w+1] << (64 - off)
		}
		dst[j] = v & mask
	}
	return bitWidth * 8
}

// BlockCount returns the number of blocks holding count values.
func BlockCount(count int) int {
	return (count + BlockSize - 1) / BlockSize
}

// HeaderSize returns the size of the width header for count values, aligned
// to 8 bytes.
func HeaderSize(count int) int {
	return (BlockCount(count) + 7) &^ 7
}

// PackedSize returns the bytes PackBlocks writes for values.
func PackedSize(values []uint64) int {
	size := HeaderSize(len(values))
	for start := 0; start < len(values); start += BlockSize {
		end := min(start+BlockSize, len(values))
		size += BlockBits(values[start:end]) * 8
	}
	return size
}

// PackBlocks writes a header byte with the width of each block followed by
// the packed blocks. The final block is padded with zeros to BlockSize
// values. dst must hold PackedSize(values) bytes.
func PackBlocks(dst []byte, values []uint64) int {
	header := HeaderSize(len(values))
	clear(dst[:header])
	pos := header
	for b, start := 0, 0; start < len(values); b, start = b+1, start+BlockSize {
		end := min(start+BlockSize, len(values))
		width := BlockBits(values[start:end])
		dst[b] = byte(width)
		pos += Pack(dst[pos:], values[start:end], width)
	}
	return pos
}

// UnpackBlocks decodes count values written by PackBlocks.
func UnpackBlocks(dst []uint64, src []byte, count int) (int, error) {
	header := HeaderSize(count)
	if len(src) < header {
		return 0, ErrTruncated
	}
	var block [BlockSize]uint64
	pos := header
	for b, start := 0, 0; start < count; b, start = b+1, start+BlockSize {
		width := int(src[b])
		if width > 64 || len(src) < pos+width*8 {
			return pos, ErrTruncated
		}
		pos += Unpack(block[:], src[pos:], width)
		copy(dst[start:min(start+BlockSize, count)], block[:])
	}
	return pos, nil
}
