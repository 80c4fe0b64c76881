package accel

import "fmt"

// PlanRanges splits totalBytes into contiguous inclusive ranges, one per
// thread. The last range absorbs the integer-division remainder. When there
// are fewer bytes than threads the thread count is clamped to totalBytes, and
// an empty resource yields no ranges.
func PlanRanges(totalBytes int64, threads int) ([]RangeSpec, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: thread count must be at least 1, got %d", ErrInvalidConfiguration, threads)
	}
	if totalBytes < 0 {
		return nil, fmt.Errorf("%w: negative content length %d", ErrInvalidConfiguration, totalBytes)
	}
	if totalBytes == 0 {
		return []RangeSpec{}, nil
	}
	count := int64(threads)
	if totalBytes < count {
		count = totalBytes
	}
	perThread := totalBytes / count
	ranges := make([]RangeSpec, count)
	for i := range count {
		ranges[i] = RangeSpec{
			Index: int(i),
			Start: i * perThread,
			End:   (i+1)*perThread - 1,
		}
	}
	ranges[count-1].End = totalBytes - 1
	return ranges, nil
}
