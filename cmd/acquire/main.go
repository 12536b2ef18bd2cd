// The acquire command runs the sensor-facing process of the tracker: it owns
// the radar device, publishes raw frames into shared memory, and writes the
// metadata file the compute process attaches with.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/acquire"
	"github.com/banshee-data/proximity.report/internal/radar/shm"
)

var (
	devMode      = flag.Bool("dev", false, "Use a synthetic radar device instead of hardware")
	settingsFile = flag.String("settings", "radar_settings.json", "Radar settings JSON file")
	metaFile     = flag.String("meta", shm.DefaultMetadataPath, "Shared memory metadata file to publish")
	memName      = flag.String("memname", "radar_frames", "Shared memory object name")
	rtPriority   = flag.Int("rt-priority", acquire.RealtimePriority, "SCHED_FIFO priority (0 to disable)")

	targetRange   = flag.Float64("target-range", 3.0, "Synthetic target range in meters (dev mode)")
	targetAngle   = flag.Float64("target-angle", 10.0, "Synthetic target bearing in degrees (dev mode)")
	targetDoppler = flag.Float64("target-doppler", 80.0, "Synthetic target Doppler in Hz (dev mode)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadRadarConfig(*settingsFile)
	if err != nil {
		log.Fatalf("failed to load radar settings: %v", err)
	}

	region, err := shm.Create(*memName, *memName, cfg.FramePayloadBytes())
	if err != nil {
		log.Fatalf("failed to create shared memory region: %v", err)
	}
	defer func() {
		region.Close()
		if region.Created() {
			region.Unlink()
		}
	}()

	meta := shm.Metadata{
		Size:    shm.HeaderBytes + cfg.FramePayloadBytes(),
		MemName: *memName,
		SemName: *memName,
	}
	if err := shm.WriteMetadata(*metaFile, meta); err != nil {
		log.Fatalf("failed to publish shared memory metadata: %v", err)
	}

	if *rtPriority > 0 {
		if err := acquire.SetRealtimePriority(*rtPriority); err != nil {
			log.Printf("realtime priority unavailable, continuing best-effort: %v", err)
		}
	}

	factory := deviceFactory(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := acquire.NewSupervisor(factory, region, nil)
	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("acquisition stopped: %v", err)
	}
	log.Printf("acquisition stopped after %d frames", sup.Published())
}

func deviceFactory(cfg *config.RadarConfig) acquire.DeviceFactory {
	if *devMode {
		targets := []acquire.SyntheticTarget{
			{RangeMeters: 2.0, AngleDegrees: -30, DopplerHz: 0, Amplitude: 0.4}, // static clutter
			{
				RangeMeters:  *targetRange,
				AngleDegrees: *targetAngle,
				DopplerHz:    *targetDoppler,
				Amplitude:    0.6,
			},
		}
		return func() (acquire.Device, error) {
			return acquire.NewSyntheticDevice(cfg, nil, targets), nil
		}
	}
	// Hardware access goes through the vendor SDK shim, which is only built
	// on the device image.
	log.Fatalf("hardware acquisition requires the sensor SDK build; run with -dev for the synthetic device")
	return nil
}
