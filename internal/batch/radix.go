package batch

const (
	radixBits = 8
	radixSize = 1 << radixBits
	radixMask = radixSize - 1
)

// RadixSort stably sorts the first length pairs of the interleaved pairs array
// by their first element, moving refs in lock-step when non-nil. Keys must be
// non-negative. auxPairs and auxRefs are scratch space of the same length and
// are reused across calls. Only as many 8-bit digits as the largest key needs
// are processed.
func RadixSort(pairs, refs, auxPairs, auxRefs []int64, length int) {
	if length < 2 {
		return
	}
	var maxKey int64
	for i := 0; i < length; i++ {
		if k := pairs[2*i]; k > maxKey {
			maxKey = k
		}
	}
	passes := 0
	for v := uint64(maxKey); v > 0; v >>= radixBits {
		passes++
	}

	if refs == nil {
		auxRefs = nil
	}
	src, dst := pairs, auxPairs
	srcRefs, dstRefs := refs, auxRefs
	var counts [radixSize + 1]int
	for pass := 0; pass < passes; pass++ {
		shift := uint(pass * radixBits)
		clear(counts[:])
		for i := 0; i < length; i++ {
			counts[(uint64(src[2*i])>>shift)&radixMask+1]++
		}
		for d := 1; d <= radixSize; d++ {
			counts[d] += counts[d-1]
		}
		for i := 0; i < length; i++ {
			digit := (uint64(src[2*i]) >> shift) & radixMask
			pos := counts[digit]
			counts[digit]++
			dst[2*pos] = src[2*i]
			dst[2*pos+1] = src[2*i+1]
			if srcRefs != nil {
				dstRefs[pos] = srcRefs[i]
			}
		}
		src, dst = dst, src
		srcRefs, dstRefs = dstRefs, srcRefs
	}
	if passes%2 == 1 {
		copy(pairs[:2*length], src[:2*length])
		if refs != nil {
			copy(refs[:length], srcRefs[:length])
		}
	}
}
