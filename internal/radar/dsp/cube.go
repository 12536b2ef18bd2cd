package dsp

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
)

// Cube is the beamformed range x Doppler x beam array for one frame.
// Transient: owned by the CubeBuilder during processing and reused across
// frames, so callers must not retain it past the frame.
type Cube struct {
	Ranges   int
	Dopplers int
	Beams    int

	data *mat.CDense // (Ranges*Dopplers) x Beams
}

// NewCube allocates a zeroed cube. The builder fills its own cube during
// Process; this constructor exists for synthesis and tests.
func NewCube(ranges, dopplers, beams int) *Cube {
	return &Cube{
		Ranges:   ranges,
		Dopplers: dopplers,
		Beams:    beams,
		data:     mat.NewCDense(ranges*dopplers, beams, nil),
	}
}

// At returns the cube value at (range bin, Doppler bin, beam).
func (c *Cube) At(r, d, b int) complex128 {
	return c.data.At(r*c.Dopplers+d, b)
}

// Set stores the cube value at (range bin, Doppler bin, beam).
func (c *Cube) Set(r, d, b int, v complex128) {
	c.data.Set(r*c.Dopplers+d, b, v)
}

// DopplerSlice copies the Doppler axis at (range bin, beam) into dst,
// allocating when dst is too small.
func (c *Cube) DopplerSlice(r, b int, dst []complex128) []complex128 {
	if cap(dst) < c.Dopplers {
		dst = make([]complex128, c.Dopplers)
	}
	dst = dst[:c.Dopplers]
	base := r * c.Dopplers
	for d := 0; d < c.Dopplers; d++ {
		dst[d] = c.data.At(base+d, b)
	}
	return dst
}

// ZeroVelocityBin is the Doppler bin of stationary returns. The Doppler FFT
// output is rotated so that zero velocity sits at the centre of the axis.
func (c *Cube) ZeroVelocityBin() int {
	return c.Dopplers / 2
}

// EnergyMap is the reduced range x beam energy of a cube.
type EnergyMap struct {
	Ranges int
	Beams  int
	Data   []float64 // row-major: r*Beams + b
}

// NewEnergyMap allocates a zeroed map.
func NewEnergyMap(ranges, beams int) *EnergyMap {
	return &EnergyMap{Ranges: ranges, Beams: beams, Data: make([]float64, ranges*beams)}
}

// At returns the energy at (range bin, beam).
func (e *EnergyMap) At(r, b int) float64 { return e.Data[r*e.Beams+b] }

// Set stores the energy at (range bin, beam).
func (e *EnergyMap) Set(r, b int, v float64) { e.Data[r*e.Beams+b] = v }

// Clone returns an independent copy.
func (e *EnergyMap) Clone() *EnergyMap {
	out := NewEnergyMap(e.Ranges, e.Beams)
	copy(out.Data, e.Data)
	return out
}

// CubeBuilder runs the per-antenna Doppler stage on a bounded worker pool and
// fuses the results into the beamformed cube.
type CubeBuilder struct {
	cfg     *config.RadarConfig
	proc    *DopplerProcessor
	weights *SteeringWeights
	workers int

	antennaMaps [][]complex128 // per antenna: ranges x dopplers
	rd          *mat.CDense    // (ranges*dopplers) x antennas
	cube        *Cube
}

// NewCubeBuilder constructs the builder with steering weights derived from
// the radar configuration.
func NewCubeBuilder(cfg *config.RadarConfig, mtiAlpha float64) *CubeBuilder {
	ranges := cfg.NumSamplesPerChirp
	dopplers := cfg.NumDopplerBins()

	workers := cfg.NumAntennas
	if n := runtime.GOMAXPROCS(0); n < workers {
		workers = n
	}

	maps := make([][]complex128, cfg.NumAntennas)
	for a := range maps {
		maps[a] = make([]complex128, ranges*dopplers)
	}

	return &CubeBuilder{
		cfg:         cfg,
		proc:        NewDopplerProcessor(cfg, mtiAlpha),
		weights:     NewSteeringWeights(cfg.NumAntennas, cfg.NumBeams, cfg.MaxAngleDegrees, DefaultSpacingRatio),
		workers:     workers,
		antennaMaps: maps,
		rd:          mat.NewCDense(ranges*dopplers, cfg.NumAntennas, nil),
		cube: &Cube{
			Ranges:   ranges,
			Dopplers: dopplers,
			Beams:    cfg.NumBeams,
			data:     mat.NewCDense(ranges*dopplers, cfg.NumBeams, nil),
		},
	}
}

// Weights exposes the steering matrix, mainly for tests.
func (b *CubeBuilder) Weights() *SteeringWeights { return b.weights }

// Reset clears per-frame history (clutter filter) after a sensor restart.
func (b *CubeBuilder) Reset() { b.proc.Reset() }

// Process turns one frame into the range-Doppler-beam cube and its energy
// map. The returned values are reused on the next call.
func (b *CubeBuilder) Process(f *frames.Frame) (*Cube, *EnergyMap, error) {
	if f.Antennas != b.cfg.NumAntennas || f.Chirps != b.cfg.NumChirpsPerFrame || f.Samples != b.cfg.NumSamplesPerChirp {
		return nil, nil, errFrameShape(f, b.cfg)
	}

	// Per-antenna Doppler maps in parallel; the Wait below is the join
	// barrier required before beamforming.
	var g errgroup.Group
	g.SetLimit(b.workers)
	for a := 0; a < f.Antennas; a++ {
		g.Go(func() error {
			b.proc.ComputeDopplerMap(f, a, b.antennaMaps[a])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rows := b.cube.Ranges * b.cube.Dopplers
	for a := 0; a < f.Antennas; a++ {
		m := b.antennaMaps[a]
		for i := 0; i < rows; i++ {
			b.rd.Set(i, a, m[i])
		}
	}

	// Stacked antennas x steering weights in one matrix product:
	// (ranges*dopplers, antennas) x (antennas, beams). Gemm writes straight
	// into the cube's backing array.
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1,
		b.rd.RawCMatrix(), b.weights.Matrix().RawCMatrix(), 0, b.cube.data.RawCMatrix())

	energy := NewEnergyMap(b.cube.Ranges, b.cube.Beams)
	norm := math.Sqrt(float64(b.cube.Beams))
	for r := 0; r < b.cube.Ranges; r++ {
		base := r * b.cube.Dopplers
		for beam := 0; beam < b.cube.Beams; beam++ {
			sum := 0.0
			for d := 0; d < b.cube.Dopplers; d++ {
				v := b.cube.data.At(base+d, beam)
				sum += real(v)*real(v) + imag(v)*imag(v)
			}
			energy.Set(r, beam, math.Sqrt(sum)/norm)
		}
	}
	return b.cube, energy, nil
}

func errFrameShape(f *frames.Frame, cfg *config.RadarConfig) error {
	return fmt.Errorf("frame shape (%d,%d,%d) does not match configuration (%d,%d,%d)",
		f.Antennas, f.Chirps, f.Samples,
		cfg.NumAntennas, cfg.NumChirpsPerFrame, cfg.NumSamplesPerChirp)
}
