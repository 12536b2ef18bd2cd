package pipeline

import (
	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/frames"
	"github.com/banshee-data/proximity.report/internal/radar/shm"
)

// FrameSource yields decoded frames. A nil frame with a nil error means no
// new frame is available yet; the caller decides how long to back off.
type FrameSource interface {
	Next() (*frames.Frame, uint64, error)
}

// RegionSource reads packed frames from the shared-memory slot and decodes
// them. The consumer's sequence gate guarantees a frame is returned at most
// once.
type RegionSource struct {
	cfg      *config.RadarConfig
	consumer *shm.Consumer
}

// NewRegionSource wraps a shared-memory consumer for the configured frame
// shape.
func NewRegionSource(cfg *config.RadarConfig, consumer *shm.Consumer) *RegionSource {
	return &RegionSource{cfg: cfg, consumer: consumer}
}

// Next returns the next unseen frame, or nil when the slot is stale.
func (s *RegionSource) Next() (*frames.Frame, uint64, error) {
	payload, seq, err := s.consumer.Next()
	if err != nil {
		return nil, 0, err
	}
	if payload == nil {
		return nil, seq, nil
	}
	f, err := frames.DecodeADC(payload, s.cfg.NumAntennas, s.cfg.NumChirpsPerFrame, s.cfg.NumSamplesPerChirp)
	if err != nil {
		return nil, seq, err
	}
	return f, seq, nil
}
