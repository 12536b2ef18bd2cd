package detect

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/dsp"
)

// DeadZoneMeters is the sensor near-field distance whose energy is cleared
// before thresholding; returns this close are coupling artifacts.
const DeadZoneMeters = 0.95

// ThresholdPercentile is the per-range percentile of energy across beams
// used as the adaptive threshold curve.
const ThresholdPercentile = 95.0

// Peak is one candidate detection cell before motion rejection and
// compaction.
type Peak struct {
	RangeIdx    int     // range bin index (needed for rescue)
	Beam        int     // beam index
	RangeMeters float64 // bin centre distance
	Energy      float64 // boosted, equalized energy
	DopplerIdx  int     // observed Doppler bin (arg-max along Doppler)
}

// Detection is one reported object in sensor-relative bearing
// (0 degrees = array boresight).
type Detection struct {
	RangeMeters  float64 `json:"range_m"`
	AngleDegrees float64 `json:"angle_deg"`
	Energy       float64 `json:"energy,omitempty"`
}

// FrameAnalysis is the detector's per-frame hand-off to motion rejection:
// the surviving peaks plus the threshold and gain curves they were tested
// against, which the slow-mover rescue re-applies.
type FrameAnalysis struct {
	PeaksPerBeam [][]Peak
	Threshold    []float64 // per range bin, derived from the un-boosted map
	RangeGain    []float64 // linear far-range gain per range bin
}

// Detector owns the persistent equalization state and applies the adaptive
// thresholding chain to each frame's energy map.
type Detector struct {
	cfg       *config.RadarConfig
	rangeBins []float64
	eq        *Equalizer

	magBuf   []float64
	sliceBuf []complex128
}

// NewDetector creates a detector for the configured geometry.
func NewDetector(cfg *config.RadarConfig) *Detector {
	return &Detector{
		cfg:       cfg,
		rangeBins: cfg.RangeBins(),
		eq:        NewEqualizer(cfg.NumBeams),
	}
}

// Equalizer exposes the equalization state, mainly for tests and the monitor.
func (d *Detector) Equalizer() *Equalizer { return d.eq }

// RangeGainVector returns the linear far-range gain per range bin: 0 dB
// below the start distance, rising at the configured slope, capped at the
// maximum boost.
func RangeGainVector(rangeBins []float64, p Params) []float64 {
	g := make([]float64, len(rangeBins))
	for i, r := range rangeBins {
		db := (r - p.FarStartMeters) * p.SlopeDBPerM
		if r < p.FarStartMeters {
			db = 0
		}
		db = math.Max(0, math.Min(p.MaxBoostDB, db))
		g[i] = math.Pow(10, db/20)
	}
	return g
}

// ThresholdCurve derives the per-range adaptive threshold from the un-boosted
// energy map: the 95th percentile across beams, floored at the base
// threshold, relaxed beyond the far-start distance.
func ThresholdCurve(energy *dsp.EnergyMap, rangeBins []float64, p Params) []float64 {
	thr := make([]float64, energy.Ranges)
	row := make([]float64, energy.Beams)
	for r := 0; r < energy.Ranges; r++ {
		copy(row, energy.Data[r*energy.Beams:(r+1)*energy.Beams])
		thr[r] = math.Max(percentile(row, ThresholdPercentile), p.BaseThreshold)
		if p.ThresholdRelax != 1.0 && rangeBins[r] >= p.FarStartMeters {
			thr[r] *= p.ThresholdRelax
		}
	}
	return thr
}

// Detect runs equalization, dead-zone clearing, thresholding, boosting and
// non-max-suppression peak extraction on one frame. The energy map is
// modified in place (equalized, cleared, boosted); the threshold curve is
// always derived before the boost so boosting cannot bias it.
func (d *Detector) Detect(cube *dsp.Cube, energy *dsp.EnergyMap, p Params) *FrameAnalysis {
	// 1. Equalization update then apply.
	d.eq.Update(energy, d.rangeBins)
	d.eq.Apply(energy)

	// 2. Dead-zone clearing.
	clearIdx := int(DeadZoneMeters / d.cfg.RangeResolutionMeters())
	if clearIdx > energy.Ranges {
		clearIdx = energy.Ranges
	}
	for r := 0; r < clearIdx; r++ {
		for b := 0; b < energy.Beams; b++ {
			energy.Set(r, b, 0)
		}
	}

	// 3. Threshold curve from the un-boosted map.
	thr := ThresholdCurve(energy, d.rangeBins, p)

	// 4. Range gain boost, applied after the threshold derivation.
	gain := RangeGainVector(d.rangeBins, p)
	for r := 0; r < energy.Ranges; r++ {
		for b := 0; b < energy.Beams; b++ {
			energy.Set(r, b, energy.At(r, b)*gain[r])
		}
	}

	// 5. 3x3 non-max suppression against the un-boosted-derived threshold.
	peaks := make([][]Peak, energy.Beams)
	for b := 0; b < energy.Beams; b++ {
		// Far to near, so nearer strong returns do not shadow far ones in
		// the per-beam cap.
		for r := energy.Ranges - 1; r >= 0; r-- {
			v := energy.At(r, b)
			if v <= thr[r] || !isLocalMax(energy, r, b, v) {
				continue
			}
			peaks[b] = append(peaks[b], Peak{
				RangeIdx:    r,
				Beam:        b,
				RangeMeters: d.rangeBins[r],
				Energy:      v,
				DopplerIdx:  d.observedDoppler(cube, r, b),
			})
		}
	}

	return &FrameAnalysis{PeaksPerBeam: peaks, Threshold: thr, RangeGain: gain}
}

// isLocalMax reports whether v is at least as large as every neighbour in
// the 3x3 window around (r, b). Ties count as maxima, matching a plateau in
// a maximum filter.
func isLocalMax(energy *dsp.EnergyMap, r, b int, v float64) bool {
	for dr := -1; dr <= 1; dr++ {
		for db := -1; db <= 1; db++ {
			nr, nb := r+dr, b+db
			if nr < 0 || nr >= energy.Ranges || nb < 0 || nb >= energy.Beams {
				continue
			}
			if energy.At(nr, nb) > v {
				return false
			}
		}
	}
	return true
}

// observedDoppler returns the index of the strongest Doppler bin at
// (range bin, beam).
func (d *Detector) observedDoppler(cube *dsp.Cube, r, b int) int {
	d.sliceBuf = cube.DopplerSlice(r, b, d.sliceBuf)
	if cap(d.magBuf) < len(d.sliceBuf) {
		d.magBuf = make([]float64, len(d.sliceBuf))
	}
	d.magBuf = d.magBuf[:len(d.sliceBuf)]
	for i, v := range d.sliceBuf {
		d.magBuf[i] = math.Hypot(real(v), imag(v))
	}
	return floats.MaxIdx(d.magBuf)
}
