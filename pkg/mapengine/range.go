package mapengine

import (
	"math"
	"sort"
)

// Range is a display color-domain.
type Range struct {
	Min float64
	Max float64
}

// ComputeRange derives a robust color-domain from the visible values:
// the 10th and 90th percentile order statistics rather than true
// min/max, so a single outlier sale cannot collapse the color scale.
// Degenerate inputs always yield a usable non-zero-width domain.
func ComputeRange(values []float64) Range {
	if len(values) == 0 {
		return Range{Min: 0, Max: 1}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pick := func(p float64) float64 {
		idx := int(math.Round(p * float64(len(sorted)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx > len(sorted)-1 {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	r := Range{Min: pick(0.1), Max: pick(0.9)}
	if r.Min == r.Max {
		r.Max = r.Min + 1
	}
	return r
}
