package detect

import (
	"math"
	"testing"

	"github.com/banshee-data/proximity.report/internal/radar/dsp"
)

// rangeGrid returns a simple range axis with 0.5 m spacing.
func rangeGrid(n int) []float64 {
	bins := make([]float64, n)
	for i := range bins {
		bins[i] = 0.5 * float64(i)
	}
	return bins
}

func uniformEnergy(ranges, beams int, perBeam []float64) *dsp.EnergyMap {
	e := dsp.NewEnergyMap(ranges, beams)
	for r := 0; r < ranges; r++ {
		for b := 0; b < beams; b++ {
			e.Set(r, b, perBeam[b])
		}
	}
	return e
}

func TestEqualizerSeedsAndFlattens(t *testing.T) {
	const ranges, beams = 8, 3
	eq := NewEqualizer(beams)

	// Beam 0 is twice as strong as beam 2.
	e := uniformEnergy(ranges, beams, []float64{2, 1, 0.5})
	eq.Update(e, rangeGrid(ranges))

	gains := eq.Gains()
	if math.Abs(gains[1]-1) > 1e-9 {
		t.Errorf("median beam gain = %g, want 1", gains[1])
	}
	if gains[0] >= 1 {
		t.Errorf("strong beam gain = %g, want < 1", gains[0])
	}
	if gains[2] <= 1 {
		t.Errorf("weak beam gain = %g, want > 1", gains[2])
	}

	eq.Apply(e)
	for b := 1; b < beams; b++ {
		if math.Abs(e.At(4, b)-e.At(4, 0)) > 1e-9 {
			t.Errorf("beam %d energy %g differs from beam 0 %g after equalization", b, e.At(4, b), e.At(4, 0))
		}
	}
}

func TestEqualizerGainClamps(t *testing.T) {
	const ranges, beams = 8, 3
	eq := NewEqualizer(beams)

	e := uniformEnergy(ranges, beams, []float64{100, 1, 0.001})
	eq.Update(e, rangeGrid(ranges))

	gains := eq.Gains()
	if gains[0] < 0.5 {
		t.Errorf("gain clamped low = %g, want >= 0.5", gains[0])
	}
	if gains[2] > 2.0 {
		t.Errorf("gain clamped high = %g, want <= 2.0", gains[2])
	}
}

func TestEqualizerSkipsAllZeroSeed(t *testing.T) {
	const ranges, beams = 8, 2
	eq := NewEqualizer(beams)

	// All-zero frame must not seed the baseline.
	eq.Update(dsp.NewEnergyMap(ranges, beams), rangeGrid(ranges))
	for b, g := range eq.Gains() {
		if g < 1 {
			t.Errorf("gain %d = %g after zero frame", b, g)
		}
	}

	// First positive frame seeds directly instead of blending from zero.
	e := uniformEnergy(ranges, beams, []float64{1, 1})
	eq.Update(e, rangeGrid(ranges))
	gains := eq.Gains()
	for b, g := range gains {
		if math.Abs(g-1) > 1e-9 {
			t.Errorf("gain %d = %g after seed, want 1", b, g)
		}
	}
}

func TestEqualizerBlendsSlowly(t *testing.T) {
	const ranges, beams = 8, 2
	eq := NewEqualizer(beams)

	eq.Update(uniformEnergy(ranges, beams, []float64{1, 1}), rangeGrid(ranges))
	// One divergent frame should barely move the baseline.
	eq.Update(uniformEnergy(ranges, beams, []float64{1, 10}), rangeGrid(ranges))

	gains := eq.Gains()
	if gains[1] < 0.9 {
		t.Errorf("gain moved too fast after one frame: %g", gains[1])
	}
}

func TestEqualizerExcludesNearField(t *testing.T) {
	const ranges, beams = 8, 2
	eq := NewEqualizer(beams)

	// Huge energy only below the 1 m cutoff (bins 0 and 1 at 0.5 m spacing).
	e := uniformEnergy(ranges, beams, []float64{1, 1})
	e.Set(0, 0, 1e6)
	e.Set(1, 0, 1e6)
	eq.Update(e, rangeGrid(ranges))

	gains := eq.Gains()
	if math.Abs(gains[0]-gains[1]) > 1e-9 {
		t.Errorf("near-field energy affected gains: %v", gains)
	}
}
