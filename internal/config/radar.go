// Package config loads the immutable radar device configuration.
//
// The configuration is read once at startup from the same JSON settings file
// the acquisition tooling programs the chip from. All values are scalars; the
// derived quantities (range grid, angle grid, wavelength, Doppler bin
// spacing) are computed on demand and never change for the process lifetime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SpeedOfLight is the propagation speed used for all range/Doppler
// conversions, in meters per second.
const SpeedOfLight = 3e8

// Default beam grid used when the settings file does not override it. The
// angular resolution at the display scale does not benefit from more beams,
// and fewer beams process faster.
const (
	DefaultNumBeams        = 50
	DefaultMaxAngleDegrees = 50.0
)

// RadarConfig holds the acquisition parameters of one radar sensor.
// Immutable after load; the processing pipeline only ever reads it.
type RadarConfig struct {
	NumSamplesPerChirp int     `json:"num_samples_per_chirp"`
	NumChirpsPerFrame  int     `json:"num_chirps_per_frame"`
	NumAntennas        int     `json:"num_antennas"`
	BandwidthHz        float64 `json:"bandwidth"`
	StartFrequencyHz   float64 `json:"start_frequency_Hz"`
	EndFrequencyHz     float64 `json:"end_frequency_Hz"`
	ChirpRateHz        float64 `json:"chirp_rate"`

	// Beam grid. Optional in the settings file; defaults applied on load.
	NumBeams        int     `json:"num_beams,omitempty"`
	MaxAngleDegrees float64 `json:"max_angle_degrees,omitempty"`
}

// LoadRadarConfig reads and validates a radar settings file. A missing or
// malformed required field is fatal to startup: there is no sensible partial
// fallback for acquisition geometry.
func LoadRadarConfig(path string) (*RadarConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("radar settings file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read radar settings: %w", err)
	}

	cfg := &RadarConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse radar settings JSON: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid radar settings: %w", err)
	}
	return cfg, nil
}

func (c *RadarConfig) applyDefaults() {
	if c.NumBeams == 0 {
		c.NumBeams = DefaultNumBeams
	}
	if c.MaxAngleDegrees == 0 {
		c.MaxAngleDegrees = DefaultMaxAngleDegrees
	}
}

// Validate checks every required acquisition parameter. Beam-grid fields are
// validated too because applyDefaults has already filled them.
func (c *RadarConfig) Validate() error {
	if c.NumSamplesPerChirp <= 0 {
		return fmt.Errorf("num_samples_per_chirp must be positive, got %d", c.NumSamplesPerChirp)
	}
	if c.NumChirpsPerFrame <= 0 {
		return fmt.Errorf("num_chirps_per_frame must be positive, got %d", c.NumChirpsPerFrame)
	}
	if c.NumAntennas <= 0 {
		return fmt.Errorf("num_antennas must be positive, got %d", c.NumAntennas)
	}
	if c.BandwidthHz <= 0 {
		return fmt.Errorf("bandwidth must be positive, got %f", c.BandwidthHz)
	}
	if c.StartFrequencyHz <= 0 || c.EndFrequencyHz <= 0 {
		return fmt.Errorf("start/end frequency must be positive, got %f/%f", c.StartFrequencyHz, c.EndFrequencyHz)
	}
	if c.EndFrequencyHz <= c.StartFrequencyHz {
		return fmt.Errorf("end frequency %f must exceed start frequency %f", c.EndFrequencyHz, c.StartFrequencyHz)
	}
	if c.ChirpRateHz <= 0 {
		return fmt.Errorf("chirp_rate must be positive, got %f", c.ChirpRateHz)
	}
	if c.NumBeams <= 1 {
		return fmt.Errorf("num_beams must be at least 2, got %d", c.NumBeams)
	}
	if c.MaxAngleDegrees <= 0 || c.MaxAngleDegrees > 90 {
		return fmt.Errorf("max_angle_degrees must be in (0, 90], got %f", c.MaxAngleDegrees)
	}
	if (c.NumSamplesPerChirp*c.NumChirpsPerFrame*c.NumAntennas)%2 != 0 {
		return fmt.Errorf("total sample count must be even for 12-bit packing, got %d",
			c.NumSamplesPerChirp*c.NumChirpsPerFrame*c.NumAntennas)
	}
	return nil
}

// CenterFrequencyHz returns the chirp centre frequency.
func (c *RadarConfig) CenterFrequencyHz() float64 {
	return 0.5 * (c.StartFrequencyHz + c.EndFrequencyHz)
}

// WavelengthMeters returns the carrier wavelength at the centre frequency.
func (c *RadarConfig) WavelengthMeters() float64 {
	return SpeedOfLight / c.CenterFrequencyHz()
}

// MaxRangeMeters returns the maximum unambiguous range of the usable half
// spectrum: c / (2*bandwidth) * (samples_per_chirp / 2).
func (c *RadarConfig) MaxRangeMeters() float64 {
	return SpeedOfLight / (2.0 * c.BandwidthHz) * (float64(c.NumSamplesPerChirp) / 2.0)
}

// RangeResolutionMeters returns the distance between adjacent range bins.
func (c *RadarConfig) RangeResolutionMeters() float64 {
	return c.MaxRangeMeters() / float64(c.NumSamplesPerChirp)
}

// RangeBins returns the range grid: NumSamplesPerChirp bins starting at zero,
// excluding MaxRangeMeters itself.
func (c *RadarConfig) RangeBins() []float64 {
	bins := make([]float64, c.NumSamplesPerChirp)
	step := c.RangeResolutionMeters()
	for i := range bins {
		bins[i] = float64(i) * step
	}
	return bins
}

// AngleBins returns the beam look-angle grid in degrees: NumBeams values
// from -MaxAngleDegrees to +MaxAngleDegrees inclusive.
func (c *RadarConfig) AngleBins() []float64 {
	bins := make([]float64, c.NumBeams)
	step := 2 * c.MaxAngleDegrees / float64(c.NumBeams-1)
	for i := range bins {
		bins[i] = -c.MaxAngleDegrees + float64(i)*step
	}
	return bins
}

// NumDopplerBins returns the Doppler axis length after zero padding.
func (c *RadarConfig) NumDopplerBins() int {
	return 2 * c.NumChirpsPerFrame
}

// DopplerBinSpacingHz returns the Doppler frequency covered by one bin.
func (c *RadarConfig) DopplerBinSpacingHz() float64 {
	return c.ChirpRateHz / float64(c.NumDopplerBins())
}

// FrameInterval returns the nominal duration of one frame: chirps per frame
// at the chirp repetition rate.
func (c *RadarConfig) FrameInterval() time.Duration {
	return time.Duration(float64(c.NumChirpsPerFrame) / c.ChirpRateHz * float64(time.Second))
}

// FrameSampleCount returns the number of ADC values in one frame across all
// antennas.
func (c *RadarConfig) FrameSampleCount() int {
	return c.NumSamplesPerChirp * c.NumChirpsPerFrame * c.NumAntennas
}

// FramePayloadBytes returns the packed 12-bit payload size of one frame.
func (c *RadarConfig) FramePayloadBytes() int {
	return c.FrameSampleCount() * 3 / 2
}
