package detect

import (
	"math"
	"testing"
)

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2}

	cases := []struct {
		pct  float64
		want float64
	}{
		{0, 1},
		{100, 4},
		{50, 2.5},
		{25, 1.75},
		{95, 3.85},
	}
	for _, tc := range cases {
		if got := percentile(values, tc.pct); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("percentile(%v) = %g, want %g", tc.pct, got, tc.want)
		}
	}

	// Input order must be preserved.
	if values[0] != 4 || values[1] != 1 {
		t.Error("percentile mutated its input")
	}
}

func TestPercentileEdgeCases(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty slice percentile = %g, want 0", got)
	}
	if got := percentile([]float64{7}, 95); got != 7 {
		t.Errorf("single value percentile = %g, want 7", got)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{5, 1, 3}); got != 3 {
		t.Errorf("odd median = %g, want 3", got)
	}
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even median = %g, want 2.5", got)
	}
}
