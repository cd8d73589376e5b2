package sensor

// Downsample reduces entries to at most maxPoints by decimation.
// dst is reused when it has enough capacity. A non-positive maxPoints
// keeps every entry.
func Downsample[T any](dst []T, entries []T, maxPoints int) []T {
	if maxPoints <= 0 || len(entries) <= maxPoints {
		if cap(dst) < len(entries) {
			dst = make([]T, len(entries))
		}
		dst = dst[:len(entries)]
		copy(dst, entries)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(entries)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		if idx := int(float64(i) * step); idx < len(entries) {
			dst = append(dst, entries[idx])
		}
	}
	return dst
}
