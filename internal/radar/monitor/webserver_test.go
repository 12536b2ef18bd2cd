package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/radar/detect"
	"github.com/banshee-data/proximity.report/internal/radar/pipeline"
	"github.com/banshee-data/proximity.report/internal/testutil"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

func testServer(t *testing.T) (*WebServer, *Monitor) {
	t.Helper()
	cfg := &config.RadarConfig{
		NumSamplesPerChirp: 32,
		NumChirpsPerFrame:  8,
		NumAntennas:        3,
		BandwidthHz:        3e8,
		StartFrequencyHz:   58e9,
		EndFrequencyHz:     63e9,
		ChirpRateHz:        2000,
		NumBeams:           11,
		MaxAngleDegrees:    50,
	}
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	pipe := pipeline.New(cfg, clock)
	mon := New(pipeline.NewDistributor(), pipe, clock)
	ws := NewWebServer(WebServerConfig{
		Address: "127.0.0.1:0",
		Radar:   cfg,
		Monitor: mon,
		Pipe:    pipe,
	})
	return ws, mon
}

func do(t *testing.T, ws *WebServer, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Serve(ws.setupRoutes(), method, target)
}

func TestHealthEndpoint(t *testing.T) {
	ws, _ := testServer(t)
	rec := do(t, ws, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	ws, _ := testServer(t)
	rec := do(t, ws, http.MethodGet, "/api/radar/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["frames_processed"]; !ok {
		t.Errorf("status body missing frames_processed: %v", got)
	}

	if rec := do(t, ws, http.MethodPost, "/api/radar/status"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestDetectionsEndpoint(t *testing.T) {
	ws, mon := testServer(t)
	mon.record([]detect.Detection{{RangeMeters: 3, AngleDegrees: 10, Energy: 0.4}})

	rec := do(t, ws, http.MethodGet, "/api/radar/detections")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []detect.Detection
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].RangeMeters != 3 {
		t.Errorf("detections = %+v", got)
	}
}

func TestRecentEndpointWithoutStore(t *testing.T) {
	ws, _ := testServer(t)
	if rec := do(t, ws, http.MethodGet, "/api/radar/detections/recent"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a configured log", rec.Code)
	}
}

func TestSensitivityEndpoint(t *testing.T) {
	ws, mon := testServer(t)

	rec := do(t, ws, http.MethodGet, "/api/radar/sensitivity")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "0.5") {
		t.Fatalf("GET = %d %q, want the neutral default", rec.Code, rec.Body.String())
	}

	rec = do(t, ws, http.MethodPost, "/api/radar/sensitivity?value=0.8")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST = %d, want 200", rec.Code)
	}
	if got := mon.Sensitivity(); got != 0.8 {
		t.Errorf("sensitivity after POST = %g, want 0.8", got)
	}

	if rec := do(t, ws, http.MethodPost, "/api/radar/sensitivity?value=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad value status = %d, want 400", rec.Code)
	}
	if rec := do(t, ws, http.MethodDelete, "/api/radar/sensitivity"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", rec.Code)
	}
}

func TestDebugViewsBeforeFirstFrame(t *testing.T) {
	ws, _ := testServer(t)
	if rec := do(t, ws, http.MethodGet, "/debug/energymap.png"); rec.Code != http.StatusNotFound {
		t.Errorf("energymap status = %d, want 404 before any frame", rec.Code)
	}
	if rec := do(t, ws, http.MethodGet, "/debug/rate"); rec.Code != http.StatusNotFound {
		t.Errorf("rate status = %d, want 404 with no history", rec.Code)
	}
}

func TestRateChartRendersHistory(t *testing.T) {
	ws, mon := testServer(t)
	mon.record([]detect.Detection{{RangeMeters: 2}})
	mon.record(nil)

	rec := do(t, ws, http.MethodGet, "/debug/rate")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want html", ct)
	}
	if !strings.Contains(rec.Body.String(), "Detections per Frame") {
		t.Error("chart body missing its title")
	}
}
