package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
)

// DefaultMTIAlpha is the forgetting factor of the exponential clutter filter.
const DefaultMTIAlpha = 0.6

// blackmanHarrisCoeffs returns the window coefficients for length n. The
// gonum window functions apply in place, so feed them a slice of ones.
func blackmanHarrisCoeffs(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	return window.BlackmanHarris(coeffs)
}

// DopplerProcessor computes per-antenna complex range-Doppler maps.
//
// Chain per antenna: per-chirp DC removal, Blackman-Harris range window,
// zero-padded (2x) real FFT keeping the usable half spectrum, exponential
// background subtraction across frames (static clutter), Blackman-Harris
// Doppler window, zero-padded (2x) complex FFT across chirps with the
// zero-velocity bin shifted to the centre.
//
// The processor keeps one FFT plan, scratch set, and clutter history per
// antenna so ComputeDopplerMap may run concurrently for distinct antennas.
type DopplerProcessor struct {
	samples  int
	chirps   int
	antennas int

	rangeFFTLen   int // 2 * samples
	dopplerFFTLen int // 2 * chirps

	rangeWindow   []float64
	dopplerWindow []float64

	mtiAlpha float64

	workers []dopplerWorker
	history [][]complex128 // per antenna: chirps x samples range spectra
}

type dopplerWorker struct {
	rfft *fourier.FFT
	cfft *fourier.CmplxFFT

	realBuf     []float64    // rangeFFTLen, zero padded chirp row
	rangeCoeffs []complex128 // rangeFFTLen/2 + 1
	spectrum    []complex128 // chirps x samples, clutter filtered
	dopplerIn   []complex128 // dopplerFFTLen
	dopplerOut  []complex128 // dopplerFFTLen
}

// NewDopplerProcessor builds a processor for the configured frame shape.
func NewDopplerProcessor(cfg *config.RadarConfig, mtiAlpha float64) *DopplerProcessor {
	p := &DopplerProcessor{
		samples:       cfg.NumSamplesPerChirp,
		chirps:        cfg.NumChirpsPerFrame,
		antennas:      cfg.NumAntennas,
		rangeFFTLen:   2 * cfg.NumSamplesPerChirp,
		dopplerFFTLen: 2 * cfg.NumChirpsPerFrame,
		rangeWindow:   blackmanHarrisCoeffs(cfg.NumSamplesPerChirp),
		dopplerWindow: blackmanHarrisCoeffs(cfg.NumChirpsPerFrame),
		mtiAlpha:      mtiAlpha,
	}

	p.workers = make([]dopplerWorker, p.antennas)
	p.history = make([][]complex128, p.antennas)
	for a := range p.workers {
		p.workers[a] = dopplerWorker{
			rfft:        fourier.NewFFT(p.rangeFFTLen),
			cfft:        fourier.NewCmplxFFT(p.dopplerFFTLen),
			realBuf:     make([]float64, p.rangeFFTLen),
			rangeCoeffs: make([]complex128, p.rangeFFTLen/2+1),
			spectrum:    make([]complex128, p.chirps*p.samples),
			dopplerIn:   make([]complex128, p.dopplerFFTLen),
			dopplerOut:  make([]complex128, p.dopplerFFTLen),
		}
		p.history[a] = make([]complex128, p.chirps*p.samples)
	}
	return p
}

// NumDopplerBins returns the Doppler axis length of the produced maps.
func (p *DopplerProcessor) NumDopplerBins() int { return p.dopplerFFTLen }

// Reset clears the clutter history, e.g. after a sensor restart.
func (p *DopplerProcessor) Reset() {
	for a := range p.history {
		clear(p.history[a])
	}
}

// ComputeDopplerMap fills dst (row-major range x Doppler, length
// samples*dopplerFFTLen) with the complex range-Doppler map for one antenna.
// Safe to call concurrently for distinct antennas; never for the same one.
func (p *DopplerProcessor) ComputeDopplerMap(f *frames.Frame, antenna int, dst []complex128) {
	w := &p.workers[antenna]
	hist := p.history[antenna]

	// Range FFT per chirp, then clutter suppression across frames.
	for c := 0; c < p.chirps; c++ {
		row := f.Chirp(antenna, c)

		mean := 0.0
		for _, v := range row {
			mean += real(v)
		}
		mean /= float64(p.samples)

		for s := 0; s < p.samples; s++ {
			w.realBuf[s] = (real(row[s]) - mean) * p.rangeWindow[s]
		}
		for s := p.samples; s < p.rangeFFTLen; s++ {
			w.realBuf[s] = 0
		}

		w.rfft.Coefficients(w.rangeCoeffs, w.realBuf)

		scale := complex(2.0/float64(p.samples), 0)
		for r := 0; r < p.samples; r++ {
			v := w.rangeCoeffs[r] * scale
			idx := c*p.samples + r
			h := hist[idx]
			w.spectrum[idx] = v - h
			hist[idx] = complex(p.mtiAlpha, 0)*v + complex(1-p.mtiAlpha, 0)*h
		}
	}

	// Doppler FFT per range bin, zero velocity shifted to the centre.
	half := p.dopplerFFTLen / 2
	chirpScale := complex(1.0/float64(p.chirps), 0)
	for r := 0; r < p.samples; r++ {
		for c := 0; c < p.chirps; c++ {
			w.dopplerIn[c] = w.spectrum[c*p.samples+r] * complex(p.dopplerWindow[c], 0)
		}
		for c := p.chirps; c < p.dopplerFFTLen; c++ {
			w.dopplerIn[c] = 0
		}

		w.cfft.Coefficients(w.dopplerOut, w.dopplerIn)

		base := r * p.dopplerFFTLen
		for d := 0; d < p.dopplerFFTLen; d++ {
			dst[base+(d+half)%p.dopplerFFTLen] = w.dopplerOut[d] * chirpScale
		}
	}
}
