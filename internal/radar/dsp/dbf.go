package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// DefaultSpacingRatio is the antenna element spacing over wavelength of the
// array. Half-wavelength spacing avoids grating lobes over the beam grid.
const DefaultSpacingRatio = 0.5

// SteeringWeights is the digital beamforming matrix: one complex phase/gain
// factor per (antenna, beam). Computed once at startup, read-only after.
type SteeringWeights struct {
	Antennas int
	Beams    int

	m *mat.CDense // antennas x beams
}

// NewSteeringWeights builds the weight matrix for a uniform linear array.
// Beam look angles span [-maxAngleDegrees, +maxAngleDegrees] inclusive with
// numBeams steps; weight w[a,b] = exp(i*2*pi*spacingRatio*sin(theta_b)*a)
// with the antenna axis reversed to match the array's element order.
func NewSteeringWeights(antennas, numBeams int, maxAngleDegrees, spacingRatio float64) *SteeringWeights {
	m := mat.NewCDense(antennas, numBeams, nil)
	step := 2 * maxAngleDegrees / float64(numBeams-1)
	for b := 0; b < numBeams; b++ {
		theta := (-maxAngleDegrees + float64(b)*step) * math.Pi / 180
		phase := 2 * math.Pi * spacingRatio * math.Sin(theta)
		for a := 0; a < antennas; a++ {
			m.Set(antennas-1-a, b, cmplx.Exp(complex(0, phase*float64(a))))
		}
	}
	return &SteeringWeights{Antennas: antennas, Beams: numBeams, m: m}
}

// At returns the weight for (antenna, beam).
func (w *SteeringWeights) At(antenna, beam int) complex128 {
	return w.m.At(antenna, beam)
}

// Matrix exposes the underlying matrix for the beamforming product.
func (w *SteeringWeights) Matrix() *mat.CDense { return w.m }
