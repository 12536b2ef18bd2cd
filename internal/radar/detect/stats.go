package detect

import "sort"

// percentile computes the pct-th percentile of values with linear
// interpolation between order statistics, matching the convention of the
// reference processing chain this detector was validated against (gonum's
// stat.Quantile interpolates the empirical CDF differently). values is not
// modified.
func percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := pct / 100 * float64(len(sorted)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

func median(values []float64) float64 {
	return percentile(values, 50)
}
