// Package monitor is the application-facing side of the tracker: the
// control facade the UI talks to and the HTTP server exposing status and
// debug views.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/radar/detect"
	"github.com/banshee-data/proximity.report/internal/radar/pipeline"
	"github.com/banshee-data/proximity.report/internal/radar/storage/sqlite"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// Sensitivity snap band: values this close to neutral are treated as exactly
// neutral so a sloppy slider release does not leave the detector slightly
// off its tuned defaults.
const (
	snapLow  = 0.48
	snapHigh = 0.52
)

// historyLen bounds the per-frame detection-count history kept for the
// charts endpoint.
const historyLen = 600

// FrameCount is one history sample for the rate chart.
type FrameCount struct {
	At    time.Time `json:"at"`
	Count int       `json:"count"`
}

// Monitor is the application's handle on the running pipeline. It forwards
// controls over the distributor's downlink and drains detections off the
// uplink, fanning them out to the log store and the in-memory history.
type Monitor struct {
	dist  *pipeline.Distributor
	pipe  *pipeline.Pipeline
	clock timeutil.Clock

	mu          sync.Mutex
	sensitivity float64
	latest      []detect.Detection
	history     []FrameCount
}

// New creates a monitor at the neutral sensitivity.
func New(dist *pipeline.Distributor, pipe *pipeline.Pipeline, clock timeutil.Clock) *Monitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{dist: dist, pipe: pipe, clock: clock, sensitivity: 0.5}
}

// SetSensitivity clamps s to [0, 1], snaps near-neutral values to 0.5, and
// forwards the result to the processing loop.
func (m *Monitor) SetSensitivity(s float64) {
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	if s > snapLow && s < snapHigh {
		s = 0.5
	}

	m.mu.Lock()
	m.sensitivity = s
	m.mu.Unlock()
	m.dist.SendControl(pipeline.Control{Sensitivity: s, HasSensitivity: true})
}

// Sensitivity returns the last requested sensitivity.
func (m *Monitor) Sensitivity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sensitivity
}

// ReceiveGyro forwards one IMU angular-rate sample to the processing loop.
// Drops are fine; rates arrive continuously and are coalesced anyway.
func (m *Monitor) ReceiveGyro(rateX, rateY float64) {
	m.dist.SendControl(pipeline.Control{RateX: rateX, RateY: rateY})
}

// Latest returns the most recent frame's detections.
func (m *Monitor) Latest() []detect.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]detect.Detection(nil), m.latest...)
}

// History returns the recorded per-frame detection counts, oldest first.
func (m *Monitor) History() []FrameCount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FrameCount(nil), m.history...)
}

func (m *Monitor) record(ds []detect.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = append(m.latest[:0], ds...)
	m.history = append(m.history, FrameCount{At: m.clock.Now(), Count: len(ds)})
	if len(m.history) > historyLen {
		m.history = m.history[len(m.history)-historyLen:]
	}
}

// Run drains the detection uplink until it closes or the context is
// cancelled. Each batch updates the in-memory views and, when a store is
// configured, the persistent log. Store failures are logged and skipped;
// losing a log row must not stall the pipeline.
func (m *Monitor) Run(ctx context.Context, store *sqlite.DetectionStore) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ds, ok := <-m.dist.Detections():
			if !ok {
				return nil
			}
			m.record(ds)
			if store != nil && len(ds) > 0 {
				status := m.pipe.Status()
				if err := store.InsertBatch(status.LastSequence, status.Sensitivity, status.MotionState, ds); err != nil {
					monitoring.Logf("monitor: detection log write failed: %v", err)
				}
			}
		}
	}
}
