// Package dsp builds the range-Doppler-beam cube from raw antenna-array
// chirp frames.
//
// The per-antenna stage (DC removal, range FFT, exponential clutter
// suppression across frames, Doppler FFT) is independent per antenna and runs
// on a bounded worker pool; beamforming then fuses all antennas in a single
// complex matrix product against the steering weight matrix. The reduced
// range x beam energy map drives the adaptive detector.
package dsp
