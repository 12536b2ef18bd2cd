package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/acquire"
	"github.com/banshee-data/proximity.report/internal/radar/monitor"
	"github.com/banshee-data/proximity.report/internal/radar/pipeline"
	"github.com/banshee-data/proximity.report/internal/radar/shm"
	"github.com/banshee-data/proximity.report/internal/radar/storage/sqlite"
	"github.com/banshee-data/proximity.report/internal/version"
)

var (
	devMode      = flag.Bool("dev", false, "Run with a synthetic in-process radar instead of attaching to the acquisition process")
	settingsFile = flag.String("settings", "radar_settings.json", "Radar settings JSON file")
	metaFile     = flag.String("meta", shm.DefaultMetadataPath, "Shared memory metadata file")
	listen       = flag.String("listen", ":8081", "Monitor HTTP listen address")
	dbFile       = flag.String("db", "detections.db", "Detection log database path (empty to disable)")
	tuningFile   = flag.String("tuning", "", "Optional detection tuning overrides JSON file")
	sensitivity  = flag.Float64("sensitivity", 0.5, "Initial detector sensitivity in [0, 1]")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// attachWait is how long the compute process waits between attempts to find
// the acquisition process's shared memory region.
const attachWait = 500 * time.Millisecond

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracker %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.LoadRadarConfig(*settingsFile)
	if err != nil {
		log.Fatalf("failed to load radar settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Frame transport. In dev mode this process owns the region and runs a
	// synthetic acquisition loop; in production it attaches to the region the
	// acquisition process created.
	var reader *shm.Region
	if *devMode {
		const devRegion = "radar_dev_frames"
		region, err := shm.Create(devRegion, devRegion, cfg.FramePayloadBytes())
		if err != nil {
			log.Fatalf("failed to create shared memory region: %v", err)
		}
		defer func() {
			region.Close()
			region.Unlink()
		}()

		// The consumer needs its own descriptor: flock locks belong to the
		// open file description, so a shared handle would not arbitrate the
		// slot between the two goroutines.
		reader, err = shm.Open(shm.Metadata{
			Size:    shm.HeaderBytes + cfg.FramePayloadBytes(),
			MemName: devRegion,
			SemName: devRegion,
		})
		if err != nil {
			log.Fatalf("failed to open shared memory region for reading: %v", err)
		}
		defer reader.Close()

		dev := func() (acquire.Device, error) {
			return acquire.NewSyntheticDevice(cfg, nil, []acquire.SyntheticTarget{
				{RangeMeters: 2.0, AngleDegrees: -30, DopplerHz: 0, Amplitude: 0.4}, // static clutter
				{RangeMeters: 3.0, AngleDegrees: 10, DopplerHz: 80, Amplitude: 0.6},
			}), nil
		}
		sup := acquire.NewSupervisor(dev, region, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("synthetic acquisition stopped: %v", err)
			}
		}()
	} else {
		reader = attachRegion(ctx)
		if reader == nil {
			return // cancelled before the acquisition process appeared
		}
		defer reader.Close()
	}

	source := pipeline.NewRegionSource(cfg, shm.NewConsumer(reader))
	dist := pipeline.NewDistributor()
	pipe := pipeline.New(cfg, nil)
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning overrides: %v", err)
		}
		pipe.SetTuning(tuning)
	}
	mon := monitor.New(dist, pipe, nil)
	mon.SetSensitivity(*sensitivity)

	var store *sqlite.DetectionStore
	if *dbFile != "" {
		store, err = sqlite.NewDetectionStore(*dbFile)
		if err != nil {
			log.Fatalf("failed to open detection log: %v", err)
		}
		defer store.Close()
		log.Printf("detection log session %s", store.SessionID)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipe.Run(ctx, source, dist); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx, store); err != nil && err != context.Canceled {
			log.Printf("monitor drain stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *listen,
			Radar:   cfg,
			Monitor: mon,
			Pipe:    pipe,
			Store:   store,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server stopped: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// attachRegion polls for the acquisition process's metadata file and opens
// its region. Returns nil when the context is cancelled first.
func attachRegion(ctx context.Context) *shm.Region {
	for {
		meta, err := shm.ReadMetadata(*metaFile)
		if err == nil {
			region, err := shm.Open(meta)
			if err == nil {
				return region
			}
			log.Printf("failed to open shared memory region: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(attachWait):
		}
	}
}
