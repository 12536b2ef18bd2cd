package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/proximity.report/internal/radar/detect"
	"github.com/banshee-data/proximity.report/internal/radar/pipeline"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

func testMonitor(t *testing.T) (*Monitor, *pipeline.Distributor) {
	t.Helper()
	dist := pipeline.NewDistributor()
	return New(dist, nil, timeutil.NewMockClock(time.Unix(1000, 0))), dist
}

func TestSetSensitivityClampsAndSnaps(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{2, 1},
		{0.49, 0.5}, // snap band around neutral
		{0.51, 0.5},
		{0.52, 0.52},
		{0.7, 0.7},
	}
	for _, c := range cases {
		m, dist := testMonitor(t)
		m.SetSensitivity(c.in)
		if got := m.Sensitivity(); got != c.want {
			t.Errorf("SetSensitivity(%g): stored %g, want %g", c.in, got, c.want)
		}
		if _, _, s := dist.NextControl(); s != c.want {
			t.Errorf("SetSensitivity(%g): forwarded %g, want %g", c.in, s, c.want)
		}
	}
}

func TestReceiveGyroForwardsRates(t *testing.T) {
	m, dist := testMonitor(t)
	m.ReceiveGyro(0.3, -0.6)
	rx, ry, _ := dist.NextControl()
	if rx != 0.3 || ry != 0.6 {
		t.Errorf("forwarded rates = %g/%g, want 0.3/0.6", rx, ry)
	}
}

func TestRecordKeepsLatestAndHistory(t *testing.T) {
	m, _ := testMonitor(t)

	m.record([]detect.Detection{{RangeMeters: 2}, {RangeMeters: 4}})
	m.record([]detect.Detection{{RangeMeters: 6}})

	latest := m.Latest()
	if len(latest) != 1 || latest[0].RangeMeters != 6 {
		t.Errorf("latest = %+v, want the last frame only", latest)
	}
	hist := m.History()
	if len(hist) != 2 || hist[0].Count != 2 || hist[1].Count != 1 {
		t.Errorf("history = %+v, want counts 2, 1", hist)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m, _ := testMonitor(t)
	for i := 0; i < historyLen+50; i++ {
		m.record(nil)
	}
	if got := len(m.History()); got != historyLen {
		t.Errorf("history length = %d, want bounded at %d", got, historyLen)
	}
}

func TestRunDrainsUplinkUntilClosed(t *testing.T) {
	m, dist := testMonitor(t)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), nil) }()

	dist.PublishDetections([]detect.Detection{{RangeMeters: 3, AngleDegrees: 15}})
	dist.CloseUplink()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil on closed uplink", err)
	}
	latest := m.Latest()
	if len(latest) != 1 || latest[0].AngleDegrees != 15 {
		t.Errorf("latest = %+v, want the published batch", latest)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m, _ := testMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
