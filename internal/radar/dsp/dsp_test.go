package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
)

func testConfig() *config.RadarConfig {
	return &config.RadarConfig{
		NumSamplesPerChirp: 32,
		NumChirpsPerFrame:  16,
		NumAntennas:        3,
		BandwidthHz:        1.5e9,
		StartFrequencyHz:   58e9,
		EndFrequencyHz:     63e9,
		ChirpRateHz:        2000,
		NumBeams:           11,
		MaxAngleDegrees:    50,
	}
}

// targetFrame synthesizes a frame holding a single tone: range bin `bin`,
// bearing angleDeg, per-chirp Doppler phase increment dopplerHz.
func targetFrame(cfg *config.RadarConfig, bin int, angleDeg, dopplerHz float64) *frames.Frame {
	f := frames.NewFrame(cfg.NumAntennas, cfg.NumChirpsPerFrame, cfg.NumSamplesPerChirp)
	omega := 2 * math.Pi * float64(bin) / float64(2*cfg.NumSamplesPerChirp)
	steer := math.Pi * math.Sin(angleDeg*math.Pi/180)
	for a := 0; a < cfg.NumAntennas; a++ {
		for c := 0; c < cfg.NumChirpsPerFrame; c++ {
			doppler := 2 * math.Pi * dopplerHz / cfg.ChirpRateHz * float64(c)
			row := f.Chirp(a, c)
			for n := range row {
				row[n] = complex(0.5+0.3*math.Cos(omega*float64(n)+steer*float64(a)+doppler), 0)
			}
		}
	}
	return f
}

func TestSteeringWeightsGeometry(t *testing.T) {
	const antennas, beams = 3, 11
	w := NewSteeringWeights(antennas, beams, 50, DefaultSpacingRatio)

	for a := 0; a < antennas; a++ {
		for b := 0; b < beams; b++ {
			if mag := cmplx.Abs(w.At(a, b)); math.Abs(mag-1) > 1e-12 {
				t.Fatalf("weight (%d,%d) magnitude = %g, want 1", a, b, mag)
			}
		}
	}

	// The centre beam looks at boresight: zero phase for every antenna.
	centre := beams / 2
	for a := 0; a < antennas; a++ {
		if v := w.At(a, centre); cmplx.Abs(v-1) > 1e-12 {
			t.Errorf("boresight weight antenna %d = %v, want 1", a, v)
		}
	}

	// Off boresight the phase ramp runs across the reversed antenna axis.
	theta := -50 * math.Pi / 180
	phase := 2 * math.Pi * DefaultSpacingRatio * math.Sin(theta)
	for a := 0; a < antennas; a++ {
		want := cmplx.Exp(complex(0, phase*float64(a)))
		if got := w.At(antennas-1-a, 0); cmplx.Abs(got-want) > 1e-12 {
			t.Errorf("weight (%d,0) = %v, want %v", antennas-1-a, got, want)
		}
	}
}

func dopplerPeak(dst []complex128, samples, dopplers int) (rBin, dBin int) {
	best := -1.0
	for r := 0; r < samples; r++ {
		for d := 0; d < dopplers; d++ {
			if m := cmplx.Abs(dst[r*dopplers+d]); m > best {
				best, rBin, dBin = m, r, d
			}
		}
	}
	return rBin, dBin
}

func TestDopplerMapLocatesStaticTone(t *testing.T) {
	cfg := testConfig()
	p := NewDopplerProcessor(cfg, DefaultMTIAlpha)

	const bin = 9
	f := targetFrame(cfg, bin, 0, 0)
	dst := make([]complex128, cfg.NumSamplesPerChirp*p.NumDopplerBins())
	p.ComputeDopplerMap(f, 0, dst)

	r, d := dopplerPeak(dst, cfg.NumSamplesPerChirp, p.NumDopplerBins())
	if r != bin {
		t.Errorf("range peak at bin %d, want %d", r, bin)
	}
	if want := p.NumDopplerBins() / 2; d != want {
		t.Errorf("Doppler peak at bin %d, want centre %d", d, want)
	}
}

func TestDopplerMapLocatesMovingTone(t *testing.T) {
	cfg := testConfig()
	p := NewDopplerProcessor(cfg, DefaultMTIAlpha)

	const bin = 7
	const dopplerHz = 250.0
	f := targetFrame(cfg, bin, 0, dopplerHz)
	dst := make([]complex128, cfg.NumSamplesPerChirp*p.NumDopplerBins())
	p.ComputeDopplerMap(f, 0, dst)

	r, d := dopplerPeak(dst, cfg.NumSamplesPerChirp, p.NumDopplerBins())
	if r != bin {
		t.Errorf("range peak at bin %d, want %d", r, bin)
	}
	want := p.NumDopplerBins()/2 + int(math.Round(dopplerHz/cfg.DopplerBinSpacingHz()))
	if d != want {
		t.Errorf("Doppler peak at bin %d, want %d", d, want)
	}
}

// The exponential clutter filter must suppress a scene that repeats across
// frames.
func TestClutterSuppressionAcrossFrames(t *testing.T) {
	cfg := testConfig()
	p := NewDopplerProcessor(cfg, DefaultMTIAlpha)

	const bin = 5
	f := targetFrame(cfg, bin, 0, 0)
	dst := make([]complex128, cfg.NumSamplesPerChirp*p.NumDopplerBins())

	mag := func() float64 {
		p.ComputeDopplerMap(f, 0, dst)
		sum := 0.0
		for _, v := range dst {
			sum += cmplx.Abs(v)
		}
		return sum
	}

	first := mag()
	second := mag()
	third := mag()
	if !(second < first && third < second) {
		t.Fatalf("static scene energy should decay: %g, %g, %g", first, second, third)
	}

	p.Reset()
	if again := mag(); again < 0.9*first {
		t.Fatalf("after Reset first-frame energy = %g, want near %g", again, first)
	}
}

func TestCubeBuilderFindsTargetBeam(t *testing.T) {
	cfg := testConfig()
	b := NewCubeBuilder(cfg, DefaultMTIAlpha)

	const bin = 9
	angles := cfg.AngleBins()
	targetBeam := 8 // 30 degrees on the 11-beam grid
	f := targetFrame(cfg, bin, angles[targetBeam], 0)

	cube, energy, err := b.Process(f)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if cube.Ranges != cfg.NumSamplesPerChirp || cube.Dopplers != cfg.NumDopplerBins() || cube.Beams != cfg.NumBeams {
		t.Fatalf("cube shape = (%d,%d,%d)", cube.Ranges, cube.Dopplers, cube.Beams)
	}

	bestR, bestB, best := 0, 0, -1.0
	for r := 0; r < energy.Ranges; r++ {
		for beam := 0; beam < energy.Beams; beam++ {
			if v := energy.At(r, beam); v > best {
				best, bestR, bestB = v, r, beam
			}
		}
	}
	if bestR != bin {
		t.Errorf("energy peak at range bin %d, want %d", bestR, bin)
	}
	if diff := bestB - targetBeam; diff < -1 || diff > 1 {
		t.Errorf("energy peak at beam %d, want %d±1", bestB, targetBeam)
	}

	if zv := cube.ZeroVelocityBin(); zv != cube.Dopplers/2 {
		t.Errorf("zero-velocity bin = %d, want %d", zv, cube.Dopplers/2)
	}
}

// The beamforming product must agree with an explicit per-cell sum of the
// per-antenna Doppler maps against the steering weights.
func TestCubeMatchesExplicitBeamSum(t *testing.T) {
	cfg := testConfig()
	b := NewCubeBuilder(cfg, DefaultMTIAlpha)
	f := targetFrame(cfg, 9, 30, 250)

	cube, _, err := b.Process(f)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Independent reference from a fresh processor, same first-frame state.
	p := NewDopplerProcessor(cfg, DefaultMTIAlpha)
	maps := make([][]complex128, cfg.NumAntennas)
	for a := range maps {
		maps[a] = make([]complex128, cfg.NumSamplesPerChirp*p.NumDopplerBins())
		p.ComputeDopplerMap(f, a, maps[a])
	}

	w := b.Weights()
	for r := 0; r < cube.Ranges; r++ {
		for d := 0; d < cube.Dopplers; d++ {
			for beam := 0; beam < cube.Beams; beam++ {
				var want complex128
				for a := 0; a < cfg.NumAntennas; a++ {
					want += maps[a][r*cube.Dopplers+d] * w.At(a, beam)
				}
				if got := cube.At(r, d, beam); cmplx.Abs(got-want) > 1e-9 {
					t.Fatalf("cube(%d,%d,%d) = %v, want %v", r, d, beam, got, want)
				}
			}
		}
	}
}

func TestCubeBuilderRejectsWrongShape(t *testing.T) {
	cfg := testConfig()
	b := NewCubeBuilder(cfg, DefaultMTIAlpha)
	f := frames.NewFrame(cfg.NumAntennas, cfg.NumChirpsPerFrame, cfg.NumSamplesPerChirp/2)
	if _, _, err := b.Process(f); err == nil {
		t.Fatal("expected shape error")
	}
}
