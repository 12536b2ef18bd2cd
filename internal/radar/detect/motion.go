package detect

import (
	"math"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/dsp"
)

// PersistenceRangeTol is the fast-state persistence window: a peak survives
// only if the previous frame had a same-beam peak within this range, in
// meters.
const PersistenceRangeTol = 0.20

// MotionState is the platform motion regime of the rejection state machine.
type MotionState int

const (
	// StateSlow is the normal handheld regime.
	StateSlow MotionState = iota
	// StateFast widens the ego-motion notch and requires frame-to-frame
	// persistence.
	StateFast
)

func (s MotionState) String() string {
	if s == StateFast {
		return "fast"
	}
	return "slow"
}

// MotionFilter rejects peaks caused by the sensor's own motion. It predicts
// the ego-motion Doppler bin per beam from the platform angular-rate
// magnitudes and notches peaks near it, with hysteresis between the slow and
// fast regimes and a rescue path for slow movers whose energy outside the
// notch still clears the threshold.
//
// State (regime plus the previous frame's fast-state peak ranges) persists
// across frames and is mutated exactly once per frame by Apply.
type MotionFilter struct {
	cfg      *config.RadarConfig
	cosAngle []float64
	sinAngle []float64

	state          MotionState
	prevFastRanges [][]float64 // per beam; nil when state was not fast

	sliceBuf []complex128
}

// NewMotionFilter creates the filter in the slow state.
func NewMotionFilter(cfg *config.RadarConfig) *MotionFilter {
	angles := cfg.AngleBins()
	m := &MotionFilter{
		cfg:      cfg,
		cosAngle: make([]float64, len(angles)),
		sinAngle: make([]float64, len(angles)),
	}
	for i, deg := range angles {
		rad := deg * math.Pi / 180
		m.cosAngle[i] = math.Cos(rad)
		m.sinAngle[i] = math.Sin(rad)
	}
	return m
}

// State returns the current motion regime.
func (m *MotionFilter) State() MotionState { return m.state }

// Apply filters the frame's peaks in place. vx and vy are the platform
// velocity components in the sensor frame, in m/s.
func (m *MotionFilter) Apply(analysis *FrameAnalysis, cube *dsp.Cube, p Params, vx, vy float64) {
	speed := math.Hypot(vx, vy)

	// Hysteresis: the gap between FastSpeed and SlowSpeed prevents chatter
	// at the boundary.
	switch {
	case m.state == StateSlow && speed >= p.FastSpeed:
		m.state = StateFast
	case m.state == StateFast && speed <= p.SlowSpeed:
		m.state = StateSlow
	}

	m.rejectEgoDoppler(analysis, cube, p, vx, vy)

	if m.state == StateFast && p.RequirePersistence {
		m.applyPersistence(analysis)
	} else {
		m.prevFastRanges = nil
	}
}

// rejectEgoDoppler drops peaks whose observed Doppler bin falls inside the
// predicted ego-motion notch, unless the slow-mover rescue retains them.
func (m *MotionFilter) rejectEgoDoppler(analysis *FrameAnalysis, cube *dsp.Cube, p Params, vx, vy float64) {
	dfBin := m.cfg.DopplerBinSpacingHz()
	lambda := m.cfg.WavelengthMeters()
	if dfBin <= 0 || lambda <= 0 {
		return
	}

	j0 := cube.ZeroVelocityBin()
	tol := p.DopplerTolNormal
	if m.state == StateFast {
		tol = p.DopplerTolFast
	}

	dopplers := cube.Dopplers
	beamNorm := math.Sqrt(float64(m.cfg.NumBeams))

	for b, beamPeaks := range analysis.PeaksPerBeam {
		// Radial velocity projected onto the beam's look angle, then the
		// Doppler relation fd = 2*v/lambda converted to a bin offset.
		vr := vx*m.cosAngle[b] + vy*m.sinAngle[b]
		jp := int(math.Round(2*vr/lambda/dfBin)) + j0

		kept := beamPeaks[:0]
		for _, peak := range beamPeaks {
			if abs(peak.DopplerIdx-jp) > tol {
				kept = append(kept, peak)
				continue
			}
			if !p.RescueEnable {
				continue
			}

			// Slow-mover rescue: recompute energy from the Doppler samples
			// outside the notch, scaled the same way as the reported energy.
			ex := p.RescueExcludeBins
			if ex < 0 {
				ex = 0
			}
			jLo := clamp(jp-ex, 0, dopplers)
			jHi := clamp(jp+ex+1, 0, dopplers)
			if jLo <= 0 && jHi >= dopplers {
				continue // notch covers the whole axis, cannot rescue
			}

			m.sliceBuf = cube.DopplerSlice(peak.RangeIdx, b, m.sliceBuf)
			sum := 0.0
			for d, v := range m.sliceBuf {
				if d >= jLo && d < jHi {
					continue
				}
				sum += real(v)*real(v) + imag(v)*imag(v)
			}
			eOut := math.Sqrt(sum) * analysis.RangeGain[peak.RangeIdx] / beamNorm
			if eOut > p.RescueRelax*analysis.Threshold[peak.RangeIdx] {
				peak.Energy = math.Max(peak.Energy, eOut)
				kept = append(kept, peak)
			}
		}
		analysis.PeaksPerBeam[b] = kept
	}
}

// applyPersistence keeps a fast-state peak only when the previous fast frame
// had a same-beam peak at a similar range. The first fast frame passes
// through unfiltered and seeds the history; a beam with no history keeps
// nothing, to stay strict while moving fast.
func (m *MotionFilter) applyPersistence(analysis *FrameAnalysis) {
	if m.prevFastRanges != nil && len(m.prevFastRanges) == len(analysis.PeaksPerBeam) {
		for b, beamPeaks := range analysis.PeaksPerBeam {
			prev := m.prevFastRanges[b]
			kept := beamPeaks[:0]
			if len(prev) > 0 {
				for _, peak := range beamPeaks {
					for _, r := range prev {
						if math.Abs(r-peak.RangeMeters) <= PersistenceRangeTol {
							kept = append(kept, peak)
							break
						}
					}
				}
			}
			analysis.PeaksPerBeam[b] = kept
		}
	}

	history := make([][]float64, len(analysis.PeaksPerBeam))
	for b, beamPeaks := range analysis.PeaksPerBeam {
		ranges := make([]float64, len(beamPeaks))
		for i, peak := range beamPeaks {
			ranges[i] = peak.RangeMeters
		}
		history[b] = ranges
	}
	m.prevFastRanges = history
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
