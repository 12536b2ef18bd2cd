package detect

import (
	"math"
	"testing"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/dsp"
)

func emptyCube(cfg *config.RadarConfig) *dsp.Cube {
	return dsp.NewCube(cfg.NumSamplesPerChirp, cfg.NumDopplerBins(), cfg.NumBeams)
}

// analysisWith builds a frame analysis with a flat threshold and unity gain.
func analysisWith(cfg *config.RadarConfig, peaks ...Peak) *FrameAnalysis {
	a := &FrameAnalysis{
		PeaksPerBeam: make([][]Peak, cfg.NumBeams),
		Threshold:    make([]float64, cfg.NumSamplesPerChirp),
		RangeGain:    make([]float64, cfg.NumSamplesPerChirp),
	}
	for i := range a.Threshold {
		a.Threshold[i] = 0.05
		a.RangeGain[i] = 1
	}
	for _, p := range peaks {
		a.PeaksPerBeam[p.Beam] = append(a.PeaksPerBeam[p.Beam], p)
	}
	return a
}

func countPeaks(a *FrameAnalysis) int {
	n := 0
	for _, peaks := range a.PeaksPerBeam {
		n += len(peaks)
	}
	return n
}

// The state machine must hold its state between the two speed thresholds.
func TestMotionHysteresis(t *testing.T) {
	cfg := detectConfig()
	m := NewMotionFilter(cfg)
	p := DefaultParams()
	cube := emptyCube(cfg)

	steps := []struct {
		speed float64
		want  MotionState
	}{
		{0.0, StateSlow},
		{0.5, StateSlow}, // between thresholds, stays slow
		{0.7, StateFast}, // above FastSpeed
		{0.5, StateFast}, // between thresholds, stays fast
		{0.41, StateFast},
		{0.3, StateSlow}, // below SlowSpeed
	}
	for i, s := range steps {
		m.Apply(analysisWith(cfg), cube, p, s.speed, 0)
		if m.State() != s.want {
			t.Fatalf("step %d (speed %g): state = %v, want %v", i, s.speed, m.State(), s.want)
		}
	}
}

func TestNotchRejectsEgoDoppler(t *testing.T) {
	cfg := detectConfig()
	m := NewMotionFilter(cfg)
	p := DefaultParams()
	p.RescueEnable = false

	cube := emptyCube(cfg)
	// Static clutter ridge on the centre bin, where stationary returns land.
	j0 := cfg.NumDopplerBins() / 2
	for r := 0; r < cube.Ranges; r++ {
		cube.Set(r, j0, 0, complex(1, 0))
	}
	if got := cube.ZeroVelocityBin(); got != j0 {
		t.Fatalf("zero-velocity bin = %d, want %d", got, j0)
	}

	inNotch := Peak{RangeIdx: 20, Beam: 3, RangeMeters: 5, Energy: 0.2, DopplerIdx: j0}
	adjacent := Peak{RangeIdx: 22, Beam: 4, RangeMeters: 5.5, Energy: 0.2, DopplerIdx: j0 + 1}
	outside := Peak{RangeIdx: 24, Beam: 5, RangeMeters: 6, Energy: 0.2, DopplerIdx: j0 + 3}

	a := analysisWith(cfg, inNotch, adjacent, outside)
	m.Apply(a, cube, p, 0, 0) // stationary platform: notch at the zero bin

	if len(a.PeaksPerBeam[3]) != 0 {
		t.Error("peak at the predicted bin survived")
	}
	if len(a.PeaksPerBeam[4]) != 0 {
		t.Error("peak within tolerance of the predicted bin survived")
	}
	if len(a.PeaksPerBeam[5]) != 1 {
		t.Error("peak outside the notch was dropped")
	}
}

// A slow mover inside the notch is kept when its energy outside the
// excluded bins still clears the relaxed threshold, with its energy taken
// from that out-of-notch measurement.
func TestSlowMoverRescue(t *testing.T) {
	cfg := detectConfig()
	m := NewMotionFilter(cfg)
	p := DefaultParams()

	const rIdx, beam = 20, 3
	j0 := cfg.NumDopplerBins() / 2
	cube := emptyCube(cfg)
	for r := 0; r < cube.Ranges; r++ {
		cube.Set(r, j0, 0, complex(1, 0))
	}
	// Energy well away from the notch at the peak's cell.
	cube.Set(rIdx, j0+5, beam, complex(0.2, 0))

	peak := Peak{RangeIdx: rIdx, Beam: beam, RangeMeters: 5, Energy: 0.05, DopplerIdx: j0}
	a := analysisWith(cfg, peak)
	m.Apply(a, cube, p, 0, 0)

	if len(a.PeaksPerBeam[beam]) != 1 {
		t.Fatal("rescuable peak was dropped")
	}
	wantEnergy := 0.2 / math.Sqrt(float64(cfg.NumBeams))
	got := a.PeaksPerBeam[beam][0].Energy
	if math.Abs(got-wantEnergy) > 1e-9 {
		t.Errorf("rescued energy = %g, want out-of-notch %g", got, wantEnergy)
	}
}

func TestRescueImpossibleWhenNotchCoversAxis(t *testing.T) {
	cfg := detectConfig()
	m := NewMotionFilter(cfg)
	p := DefaultParams()
	p.RescueExcludeBins = cfg.NumDopplerBins() // notch swallows everything

	j0 := cfg.NumDopplerBins() / 2
	cube := emptyCube(cfg)
	for r := 0; r < cube.Ranges; r++ {
		cube.Set(r, j0, 0, complex(1, 0))
	}
	cube.Set(20, j0+5, 3, complex(10, 0))

	a := analysisWith(cfg, Peak{RangeIdx: 20, Beam: 3, RangeMeters: 5, Energy: 0.05, DopplerIdx: j0})
	m.Apply(a, cube, p, 0, 0)
	if countPeaks(a) != 0 {
		t.Fatal("peak rescued although the notch covers the whole Doppler axis")
	}
}

func TestFastPersistence(t *testing.T) {
	cfg := detectConfig()
	m := NewMotionFilter(cfg)
	p := DefaultParams()
	cube := emptyCube(cfg)

	// vx=0.7 predicts ego bin 10 on every beam used here; bin 14 stays
	// outside the widened fast notch so only persistence is observed.
	mk := func(beam int, rng float64) Peak {
		return Peak{RangeIdx: 20, Beam: beam, RangeMeters: rng, Energy: 0.2, DopplerIdx: 14}
	}

	// First fast frame: passes through, seeds the history.
	a1 := analysisWith(cfg, mk(3, 5.0))
	m.Apply(a1, cube, p, 0.7, 0)
	if m.State() != StateFast {
		t.Fatal("filter did not enter the fast state")
	}
	if len(a1.PeaksPerBeam[3]) != 1 {
		t.Fatal("first fast frame should pass through")
	}

	// Second fast frame: same beam within tolerance survives, a new beam
	// with no history does not.
	a2 := analysisWith(cfg, mk(3, 5.15), mk(6, 5.0))
	m.Apply(a2, cube, p, 0.7, 0)
	if len(a2.PeaksPerBeam[3]) != 1 {
		t.Error("persistent peak was dropped")
	}
	if len(a2.PeaksPerBeam[6]) != 0 {
		t.Error("unseen beam peak survived in the fast state")
	}

	// Same beam but outside the range tolerance.
	a3 := analysisWith(cfg, mk(3, 5.6))
	m.Apply(a3, cube, p, 0.7, 0)
	if len(a3.PeaksPerBeam[3]) != 0 {
		t.Error("jumped peak survived the persistence gate")
	}

	// Dropping to slow clears the history; the next fast frame passes again.
	m.Apply(analysisWith(cfg), cube, p, 0.0, 0)
	a4 := analysisWith(cfg, mk(8, 2.0))
	m.Apply(a4, cube, p, 0.7, 0)
	if len(a4.PeaksPerBeam[8]) != 1 {
		t.Error("history survived a slow interlude")
	}
}
