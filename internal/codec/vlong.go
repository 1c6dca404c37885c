// Package codec holds the integer encodings used for adjacency lists:
// zig-zag, variable length longs, delta coding and 64 value bit-packed blocks.
package codec

import (
	"errors"
)

// MaxVLongSize is the encoded size of the largest 64-bit value.
const MaxVLongSize = 9

// ErrTruncated is returned when input ends inside an encoded value.
var ErrTruncated = errors.New("codec: truncated input")

// ZigZag maps signed values onto unsigned ones so that small magnitudes of
// either sign encode to small numbers.
func ZigZag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// UnZigZag reverses ZigZag.
func UnZigZag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// VLongSize returns the encoded size of v: one byte per started 7 bits for
// the first eight bytes, and a full ninth byte for the top 8 bits.
func VLongSize(v uint64) int {
	for n := 1; n < MaxVLongSize; n++ {
		if v < 1<<(7*n) {
			return n
		}
	}
	return MaxVLongSize
}

// PutVLong encodes v into dst and returns the number of bytes written. dst
// must hold VLongSize(v) bytes.
func PutVLong(dst []byte, v uint64) int {
	for i := 0; i < MaxVLongSize-1; i++ {
		if v < 0x80 {
			dst[i] = byte(v)
			return i + 1
		}
		dst[i] = byte(v) | 0x80
		v >>= 7
	}
	dst[MaxVLongSize-1] = byte(v)
	return MaxVLongSize
}

// VLong decodes one value from src. It returns the value and the number of
// bytes read, or n == 0 when src ends before the value does.
func VLong(src []byte) (uint64, int) {
	var v uint64
	for i := 0; i < MaxVLongSize-1; i++ {
		if i >= len(src) {
			return 0, 0
		}
		b := src[i]
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, i + 1
		}
	}
	if len(src) < MaxVLongSize {
		return 0, 0
	}
	return v | uint64(src[MaxVLongSize-1])<<56, MaxVLongSize
}

// EncodedSize returns the bytes needed to encode values.
func EncodedSize(values []int64) int {
	n := 0
	for _, v := range values {
		n += VLongSize(uint64(v))
	}
	return n
}

// EncodeVLongs writes values to dst and returns the bytes written.
func EncodeVLongs(dst []byte, values []int64) int {
	pos := 0
	for _, v := range values {
		pos += PutVLong(dst[pos:], uint64(v))
	}
	return pos
}

// DecodeVLongs fills dst with len(dst) values read from src and returns the
// bytes consumed.
func DecodeVLongs(src []byte, dst []int64) (int, error) {
	pos := 0
	for i := range dst {
		v, n := VLong(src[pos:])
		if n == 0 {
			return pos, ErrTruncated
		}
		dst[i] = int64(v)
		pos += n
	}
	return pos, nil
}
