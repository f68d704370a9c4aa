package fetchlib

// SegmentRange is the half-open byte range [Start, End) owned by one worker.
type SegmentRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r SegmentRange) Len() int64 {
	return r.End - r.Start
}

// SplitRanges partitions [0, total) into n contiguous ranges of
// total/n bytes each; the last range absorbs the remainder.
//
// Workers write into a shared mapping without locks, so every range set used
// by the engine must come from here.
func SplitRanges(total int64, n int) ([]SegmentRange, error) {
	if n < 1 || n > MAX_SEGMENTS {
		return nil, ErrInvalidSegmentCount
	}
	if total < 1 {
		return nil, ErrInvalidTotalSize
	}
	if int64(n) > total {
		n = int(total)
	}
	size := total / int64(n)
	ranges := make([]SegmentRange, n)
	var off int64
	for i := range ranges {
		end := off + size
		if i == n-1 {
			end = total
		}
		ranges[i] = SegmentRange{Start: off, End: end}
		off = end
	}
	return ranges, nil
}

// effectiveSize prefers the probed size and falls back to the hint.
func effectiveSize(probed, hint int64) int64 {
	if probed > 0 {
		return probed
	}
	return hint
}

// useSegments reports whether a file of size bytes is worth splitting into
// segments parts of at least blockSize each.
func useSegments(size int64, segments int, blockSize, minSegmentSize int64) bool {
	if size <= 0 || segments <= 1 {
		return false
	}
	threshold := max(minSegmentSize, int64(segments)*blockSize)
	return size >= threshold
}
