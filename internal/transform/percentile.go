package transform

import (
	"fmt"
	"math"
	"sort"
)

// Percentile returns the q-th percentile (0..100) of values using linear
// interpolation between order statistics: with the values sorted ascending,
// h = (n-1)*q/100 and the result lies between v[floor(h)] and v[floor(h)+1].
// This is the Hyndman-Fan type 7 estimator. Fractions of one half or more
// interpolate back from the upper neighbour, which keeps results exact at h
// close to the next order statistic.
func Percentile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, emptyInputError(StageClassify, "cannot compute a percentile of an empty sample")
	}
	if q < 0 || q > 100 || math.IsNaN(q) {
		return 0, validationError(StageClassify, fmt.Sprintf("percentile %v out of range [0, 100]", q))
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0], nil
	}

	h := float64(len(sorted)-1) * (q / 100)
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1], nil
	}
	frac := h - float64(lo)
	a, b := sorted[lo], sorted[lo+1]
	return lerp(a, b, frac), nil
}

func lerp(a, b, t float64) float64 {
	diff := b - a
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}
