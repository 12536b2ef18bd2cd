package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/radar/shm"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// Recovery pacing. The settle delay gives the sensor firmware time to reset
// between teardown and reopen.
const (
	recoverySettle      = 250 * time.Millisecond
	maxRecoveryAttempts = 5
)

// Supervisor owns the acquisition loop: it keeps one device running,
// publishes every frame into the shared region, and rebuilds the device from
// scratch when it fails mid-stream.
type Supervisor struct {
	factory DeviceFactory
	region  *shm.Region
	clock   timeutil.Clock

	published uint64
}

// NewSupervisor wires a device factory to a shared region.
func NewSupervisor(factory DeviceFactory, region *shm.Region, clock timeutil.Clock) *Supervisor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Supervisor{factory: factory, region: region, clock: clock}
}

// Published returns the number of frames written to the region.
func (s *Supervisor) Published() uint64 { return s.published }

// Run acquires frames until the context is cancelled. Device failures
// trigger the recovery sequence; only repeated recovery failure is fatal.
func (s *Supervisor) Run(ctx context.Context) error {
	dev, err := s.factory()
	if err != nil {
		return fmt.Errorf("open radar device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return fmt.Errorf("start radar device: %w", err)
	}
	defer func() {
		if dev != nil {
			dev.Stop()
			dev.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := dev.NextFrame()
		if err != nil {
			monitoring.Logf("acquire: frame read failed: %v", err)
			dev, err = s.recover(ctx, dev)
			if err != nil {
				return err
			}
			continue
		}

		if err := s.region.Publish(payload); err != nil {
			return fmt.Errorf("publish frame: %w", err)
		}
		s.published++
	}
}

// recover tears the failed device down completely and brings up a fresh one.
// Stop and Close errors are logged and ignored; the handle is gone either
// way.
func (s *Supervisor) recover(ctx context.Context, failed Device) (Device, error) {
	if err := failed.Stop(); err != nil {
		monitoring.Logf("acquire: stop during recovery: %v", err)
	}
	if err := failed.Close(); err != nil {
		monitoring.Logf("acquire: close during recovery: %v", err)
	}

	for attempt := 1; attempt <= maxRecoveryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.clock.Sleep(recoverySettle)

		dev, err := s.factory()
		if err == nil {
			if err = dev.Start(); err == nil {
				monitoring.Logf("acquire: device recovered after %d attempt(s)", attempt)
				return dev, nil
			}
			dev.Close()
		}
		monitoring.Logf("acquire: recovery attempt %d/%d failed: %v", attempt, maxRecoveryAttempts, err)
	}
	return nil, fmt.Errorf("radar device unrecoverable after %d attempts", maxRecoveryAttempts)
}
