package acquire

import (
	"fmt"
	"math"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// SyntheticTarget is one simulated reflector.
type SyntheticTarget struct {
	RangeMeters  float64
	AngleDegrees float64
	DopplerHz    float64
	Amplitude    float64 // fraction of ADC full scale, typically 0.2
}

// SyntheticDevice generates frames containing the configured targets over a
// mid-scale carrier, paced at the configured frame rate. It stands in for
// the sensor on development machines and in tests.
type SyntheticDevice struct {
	cfg     *config.RadarConfig
	clock   timeutil.Clock
	targets []SyntheticTarget

	running bool
	frame   *frames.Frame
}

// NewSyntheticDevice creates a stopped synthetic device.
func NewSyntheticDevice(cfg *config.RadarConfig, clock timeutil.Clock, targets []SyntheticTarget) *SyntheticDevice {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticDevice{
		cfg:     cfg,
		clock:   clock,
		targets: targets,
		frame:   frames.NewFrame(cfg.NumAntennas, cfg.NumChirpsPerFrame, cfg.NumSamplesPerChirp),
	}
}

func (d *SyntheticDevice) Start() error { d.running = true; return nil }
func (d *SyntheticDevice) Stop() error  { d.running = false; return nil }
func (d *SyntheticDevice) Close() error { d.running = false; return nil }

// NextFrame synthesizes one frame and returns its packed payload.
func (d *SyntheticDevice) NextFrame() ([]byte, error) {
	if !d.running {
		return nil, fmt.Errorf("synthetic device not started")
	}

	d.clock.Sleep(d.cfg.FrameInterval())
	d.fill()
	return frames.EncodeADC(d.frame)
}

// fill renders the targets into the frame buffer. Each target is a tone at
// its range bin, phase-shifted per antenna to steer to its bearing and per
// chirp to produce its Doppler shift.
func (d *SyntheticDevice) fill() {
	samples := d.cfg.NumSamplesPerChirp
	chirps := d.cfg.NumChirpsPerFrame
	res := d.cfg.RangeResolutionMeters()

	for a := 0; a < d.cfg.NumAntennas; a++ {
		for c := 0; c < chirps; c++ {
			row := d.frame.Chirp(a, c)
			for n := range row {
				row[n] = complex(0.5, 0)
			}
			for _, t := range d.targets {
				bin := math.Round(t.RangeMeters / res)
				// Zero-padded range FFT of length 2*samples puts this tone
				// in bin `bin`.
				omega := 2 * math.Pi * bin / float64(2*samples)
				steer := math.Pi * math.Sin(t.AngleDegrees*math.Pi/180) * float64(a)
				doppler := 2 * math.Pi * t.DopplerHz / d.cfg.ChirpRateHz * float64(c)
				for n := 0; n < samples; n++ {
					row[n] += complex(t.Amplitude*math.Cos(omega*float64(n)+steer+doppler), 0)
				}
			}
		}
	}
}
