package detect

import (
	"math"
	"sort"

	"github.com/banshee-data/proximity.report/internal/radar/dsp"
)

// Equalization constants.
const (
	// EqualizationAlpha is the per-frame EMA factor for the beam baseline.
	EqualizationAlpha = 0.01
	// EqualizationMinRange excludes near-field bins from the baseline
	// statistic, in meters.
	EqualizationMinRange = 1.0
	// Gain clamps: edge beams may be boosted at most 2x and cut at most 0.5x.
	equalizationMinGain = 0.5
	equalizationMaxGain = 2.0
)

// Equalizer maintains the per-beam energy baseline and the gain vector that
// flattens systematic beam-to-beam response differences. State persists for
// the process lifetime and is updated exactly once per frame.
type Equalizer struct {
	beams    int
	baseline []float64
	gains    []float64
	ready    bool
}

// NewEqualizer creates an equalizer with unity gains.
func NewEqualizer(beams int) *Equalizer {
	gains := make([]float64, beams)
	for i := range gains {
		gains[i] = 1
	}
	return &Equalizer{
		beams:    beams,
		baseline: make([]float64, beams),
		gains:    gains,
	}
}

// Gains returns the current per-beam gain vector (read-only view).
func (e *Equalizer) Gains() []float64 { return e.gains }

// Update refreshes the baseline from the median energy per beam over range
// bins at or beyond EqualizationMinRange, then recomputes the gain vector
// normalized to the median beam. The baseline is seeded from the first frame
// with any positive median and blended with EqualizationAlpha afterwards.
func (e *Equalizer) Update(energy *dsp.EnergyMap, rangeBins []float64) {
	k0 := sort.SearchFloat64s(rangeBins, EqualizationMinRange)
	if k0 >= energy.Ranges {
		return
	}

	med := make([]float64, e.beams)
	col := make([]float64, energy.Ranges-k0)
	anyPositive := false
	for b := 0; b < e.beams; b++ {
		for r := k0; r < energy.Ranges; r++ {
			col[r-k0] = energy.At(r, b)
		}
		med[b] = median(col)
		if med[b] > 0 {
			anyPositive = true
		}
	}

	if !e.ready && anyPositive {
		copy(e.baseline, med)
		e.ready = true
	} else {
		for b := range e.baseline {
			e.baseline[b] = (1-EqualizationAlpha)*e.baseline[b] + EqualizationAlpha*med[b]
		}
	}

	positive := make([]float64, 0, e.beams)
	for _, v := range e.baseline {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	ref := 1.0
	if len(positive) > 0 {
		ref = median(positive)
	}

	const eps = 1e-6
	for b := range e.gains {
		g := ref / math.Max(e.baseline[b], eps)
		e.gains[b] = math.Max(equalizationMinGain, math.Min(equalizationMaxGain, g))
	}
}

// Apply multiplies the energy map by the per-beam gains in place.
func (e *Equalizer) Apply(energy *dsp.EnergyMap) {
	for r := 0; r < energy.Ranges; r++ {
		for b := 0; b < energy.Beams; b++ {
			energy.Set(r, b, energy.At(r, b)*e.gains[b])
		}
	}
}
