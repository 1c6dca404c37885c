package adjacency

import (
	"fmt"
	"strings"
)

// Compression selects the encoding of final adjacency lists.
type Compression int

const (
	// VarLong stores sorted targets as delta coded variable length longs.
	VarLong Compression = iota
	// Packed stores deltas in bit-packed blocks of 64 values.
	Packed
	// Uncompressed stores targets as little endian 64-bit words.
	Uncompressed
)

func (c Compression) String() string {
	switch c {
	case VarLong:
		return "varlong"
	case Packed:
		return "packed"
	case Uncompressed:
		return "uncompressed"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression reads a compression name.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "varlong", "delta":
		return VarLong, nil
	case "packed", "bitpacked":
		return Packed, nil
	case "uncompressed", "none":
		return Uncompressed, nil
	default:
		return VarLong, fmt.Errorf("unknown compression %q", s)
	}
}

// Decode implements envconfig.Decoder.
func (c *Compression) Decode(value string) error {
	parsed, err := ParseCompression(value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
