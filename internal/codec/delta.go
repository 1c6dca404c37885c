package codec

// ValueMapper rewrites decoded ids, for example from an intermediate id space
// into dense ids. A nil mapper is the identity.
type ValueMapper func(int64) int64

// Identity returns its input.
func Identity(v int64) int64 {
	return v
}

// DeltaEncodeSorted replaces every value after the first of an ascending
// sequence with the difference to its predecessor and returns the resulting
// length. With dedupe set, zero deltas are dropped so runs of equal values
// collapse into one entry. The first value is kept verbatim.
func DeltaEncodeSorted(values []int64, dedupe bool) int {
	if len(values) == 0 {
		return 0
	}
	prev := values[0]
	out := 1
	for i := 1; i < len(values); i++ {
		cur := values[i]
		delta := cur - prev
		prev = cur
		if dedupe && delta == 0 {
			continue
		}
		values[out] = delta
		out++
	}
	return out
}

// PrefixSum reverses delta coding in place.
func PrefixSum(values []int64) {
	for i := 1; i < len(values); i++ {
		values[i] += values[i-1]
	}
}

// DecodeAndPrefixSum decodes len(dst) delta coded vlongs from src, restores
// absolute values and applies mapper to each. It returns the bytes consumed.
func DecodeAndPrefixSum(src []byte, dst []int64, mapper ValueMapper) (int, error) {
	pos := 0
	var sum int64
	for i := range dst {
		v, n := VLong(src[pos:])
		if n == 0 {
			return pos, ErrTruncated
		}
		pos += n
		sum += int64(v)
		dst[i] = sum
	}
	applyMapper(dst, mapper)
	return pos, nil
}

// DecodeZigZagPrefixSum is DecodeAndPrefixSum for zig-zag coded deltas whose
// base is zero, as written by the per-node accumulator.
func DecodeZigZagPrefixSum(src []byte, dst []int64, mapper ValueMapper) (int, error) {
	pos := 0
	var sum int64
	for i := range dst {
		v, n := VLong(src[pos:])
		if n == 0 {
			return pos, ErrTruncated
		}
		pos += n
		sum += UnZigZag(v)
		dst[i] = sum
	}
	applyMapper(dst, mapper)
	return pos, nil
}

func applyMapper(values []int64, mapper ValueMapper) {
	if mapper == nil {
		return
	}
	for i, v := range values {
		values[i] = mapper(v)
	}
}
