// Package pipeline assembles the per-frame processing chain of the motion
// tracker and runs it against a frame source: shared-memory frames in, cube
// building, adaptive detection, ego-motion rejection, compaction, and the
// detection hand-off to the application side.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/radar/detect"
	"github.com/banshee-data/proximity.report/internal/radar/dsp"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// StaleFrameYield is how long the loop sleeps when the shared slot has not
// been refreshed since the previous read.
const StaleFrameYield = 50 * time.Millisecond

// Status is a point-in-time snapshot of the processing loop for the monitor
// endpoints.
type Status struct {
	FramesProcessed uint64             `json:"frames_processed"`
	DroppedFrames   uint64             `json:"dropped_frames"`
	LastSequence    uint64             `json:"last_sequence"`
	Sensitivity     float64            `json:"sensitivity"`
	MotionState     string             `json:"motion_state"`
	Detections      []detect.Detection `json:"detections"`
	BeamGains       []float64          `json:"beam_gains,omitempty"`
	LastFrameAt     time.Time          `json:"last_frame_at"`
}

// Pipeline owns the stateful processing stages and runs the frame loop. All
// stage state (clutter history, equalization, motion regime) lives here and
// is touched only by the loop goroutine; the snapshot for the monitor is the
// one piece of shared state and sits behind its own lock.
type Pipeline struct {
	cfg       *config.RadarConfig
	builder   *dsp.CubeBuilder
	detector  *detect.Detector
	motion    *detect.MotionFilter
	angleBins []float64
	clock     timeutil.Clock

	params      detect.Params
	sensitivity float64
	tuning      *config.TuningConfig

	mu     sync.Mutex
	status Status
	energy *dsp.EnergyMap // clone of the last frame's processed map
}

// New creates a pipeline at the neutral sensitivity.
func New(cfg *config.RadarConfig, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		cfg:         cfg,
		builder:     dsp.NewCubeBuilder(cfg, dsp.DefaultMTIAlpha),
		detector:    detect.NewDetector(cfg),
		motion:      detect.NewMotionFilter(cfg),
		angleBins:   cfg.AngleBins(),
		clock:       clock,
		params:      detect.ParamsForSensitivity(0.5),
		sensitivity: 0.5,
	}
}

// SetTuning installs parameter overrides applied on top of every mapped
// sensitivity. Call before the loop starts; nil clears all overrides.
func (p *Pipeline) SetTuning(t *config.TuningConfig) {
	p.tuning = t
	p.params = p.paramsFor(p.sensitivity)
}

// SetSensitivity rebuilds the detector parameters. Loop goroutine only; the
// application side changes sensitivity through a Control message.
func (p *Pipeline) SetSensitivity(s float64) {
	if s == p.sensitivity {
		return
	}
	p.sensitivity = s
	p.params = p.paramsFor(s)
	monitoring.Logf("radar: sensitivity set to %.2f", s)
}

// paramsFor maps the sensitivity and lays any tuning overrides on top.
func (p *Pipeline) paramsFor(s float64) detect.Params {
	params := detect.ParamsForSensitivity(s)
	t := p.tuning
	if t == nil {
		return params
	}
	if t.BaseThreshold != nil {
		params.BaseThreshold = *t.BaseThreshold
	}
	if t.TopK != nil {
		params.TopK = *t.TopK
	}
	if t.MinRangeHard != nil {
		params.MinRangeHard = *t.MinRangeHard
	}
	if t.BaseRangeTol != nil {
		params.BaseRangeTol = *t.BaseRangeTol
	}
	if t.StepPerBucket != nil {
		params.StepPerBucket = *t.StepPerBucket
	}
	if t.AngleBucketDeg != nil {
		params.AngleBucketDeg = *t.AngleBucketDeg
	}
	if t.MaxRangeTol != nil {
		params.MaxRangeTol = *t.MaxRangeTol
	}
	if t.Mode != nil {
		params.Mode = detect.Mode(*t.Mode)
	}
	if t.DopplerTolNormal != nil {
		params.DopplerTolNormal = *t.DopplerTolNormal
	}
	if t.DopplerTolFast != nil {
		params.DopplerTolFast = *t.DopplerTolFast
	}
	if t.FastSpeed != nil {
		params.FastSpeed = *t.FastSpeed
	}
	if t.SlowSpeed != nil {
		params.SlowSpeed = *t.SlowSpeed
	}
	if t.RequirePersistence != nil {
		params.RequirePersistence = *t.RequirePersistence
	}
	if t.FarStartMeters != nil {
		params.FarStartMeters = *t.FarStartMeters
	}
	if t.SlopeDBPerM != nil {
		params.SlopeDBPerM = *t.SlopeDBPerM
	}
	if t.MaxBoostDB != nil {
		params.MaxBoostDB = *t.MaxBoostDB
	}
	if t.ThresholdRelax != nil {
		params.ThresholdRelax = *t.ThresholdRelax
	}
	if t.RescueEnable != nil {
		params.RescueEnable = *t.RescueEnable
	}
	if t.RescueExcludeBins != nil {
		params.RescueExcludeBins = *t.RescueExcludeBins
	}
	if t.RescueRelax != nil {
		params.RescueRelax = *t.RescueRelax
	}
	return params
}

// ProcessFrame runs one frame through the full chain and returns the
// compacted detections.
func (p *Pipeline) ProcessFrame(f *frames.Frame, seq uint64, vx, vy float64) ([]detect.Detection, error) {
	cube, energy, err := p.builder.Process(f)
	if err != nil {
		return nil, err
	}

	analysis := p.detector.Detect(cube, energy, p.params)
	p.motion.Apply(analysis, cube, p.params, vx, vy)
	detections := detect.Compact(analysis.PeaksPerBeam, p.angleBins, p.params)

	p.mu.Lock()
	p.status.FramesProcessed++
	if p.status.LastSequence != 0 && seq > p.status.LastSequence+1 {
		p.status.DroppedFrames += seq - p.status.LastSequence - 1
	}
	p.status.LastSequence = seq
	p.status.Sensitivity = p.sensitivity
	p.status.MotionState = p.motion.State().String()
	p.status.Detections = detections
	p.status.BeamGains = append(p.status.BeamGains[:0], p.detector.Equalizer().Gains()...)
	p.status.LastFrameAt = p.clock.Now()
	p.energy = energy.Clone()
	p.mu.Unlock()

	return detections, nil
}

// Reset clears frame-to-frame filter state after a sensor restart.
func (p *Pipeline) Reset() { p.builder.Reset() }

// Status returns a copy of the current snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Detections = append([]detect.Detection(nil), p.status.Detections...)
	s.BeamGains = append([]float64(nil), p.status.BeamGains...)
	return s
}

// EnergyMap returns a copy of the last processed energy map, or nil before
// the first frame.
func (p *Pipeline) EnergyMap() *dsp.EnergyMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.energy == nil {
		return nil
	}
	return p.energy.Clone()
}

// Run drives the loop until the context is cancelled or the source fails.
// Each cycle coalesces pending controls, pulls at most one frame, and
// publishes its detections on the distributor. A stale slot yields briefly
// instead of spinning.
func (p *Pipeline) Run(ctx context.Context, source FrameSource, dist *Distributor) error {
	defer dist.CloseUplink()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		vx, vy, sensitivity := dist.NextControl()
		p.SetSensitivity(sensitivity)

		f, seq, err := source.Next()
		if err != nil {
			return err
		}
		if f == nil {
			p.clock.Sleep(StaleFrameYield)
			continue
		}

		detections, err := p.ProcessFrame(f, seq, vx, vy)
		if err != nil {
			monitoring.Logf("radar: frame %d dropped: %v", seq, err)
			continue
		}
		dist.PublishDetections(detections)
	}
}
