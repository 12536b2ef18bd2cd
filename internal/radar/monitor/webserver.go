package monitor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/httputil"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/radar/pipeline"
	"github.com/banshee-data/proximity.report/internal/radar/storage/sqlite"
	"github.com/banshee-data/proximity.report/internal/version"
)

// WebServer exposes the tracker's status and debug views over HTTP.
type WebServer struct {
	address string
	cfg     *config.RadarConfig
	mon     *Monitor
	pipe    *pipeline.Pipeline
	store   *sqlite.DetectionStore
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Radar   *config.RadarConfig
	Monitor *Monitor
	Pipe    *pipeline.Pipeline
	Store   *sqlite.DetectionStore // optional
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(c WebServerConfig) *WebServer {
	ws := &WebServer{
		address: c.Address,
		cfg:     c.Radar,
		mon:     c.Monitor,
		pipe:    c.Pipe,
		store:   c.Store,
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// Start runs the server until the context is cancelled, then shuts it down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("monitor: HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("monitor: HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor: HTTP shutdown error: %v", err)
		return ws.server.Close()
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/radar/status", ws.handleStatus)
	mux.HandleFunc("/api/radar/detections", ws.handleDetections)
	mux.HandleFunc("/api/radar/detections/recent", ws.handleRecent)
	mux.HandleFunc("/api/radar/sensitivity", ws.handleSensitivity)
	mux.HandleFunc("/debug/energymap.png", ws.handleEnergyMap)
	mux.HandleFunc("/debug/rate", ws.handleRateChart)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "version": version.Version})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.pipe.Status())
}

func (ws *WebServer) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.mon.Latest())
}

func (ws *WebServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.NotFound(w, "detection log not configured")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	rows, err := ws.store.Recent(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("query detection log: %v", err))
		return
	}
	httputil.WriteJSONOK(w, rows)
}

// handleSensitivity reads (GET) or sets (POST ?value=0.7) the single
// sensitivity control.
func (ws *WebServer) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]float64{"sensitivity": ws.mon.Sensitivity()})
	case http.MethodPost:
		v, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
		if err != nil {
			httputil.BadRequest(w, "value must be a number in [0, 1]")
			return
		}
		ws.mon.SetSensitivity(v)
		httputil.WriteJSONOK(w, map[string]float64{"sensitivity": ws.mon.Sensitivity()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// energyGrid adapts the range x beam energy map to the heatmap plotter,
// with physical units on both axes.
type energyGrid struct {
	data   []float64
	ranges []float64
	angles []float64
	beams  int
}

func (g energyGrid) Dims() (int, int)   { return g.beams, len(g.ranges) }
func (g energyGrid) X(c int) float64    { return g.angles[c] }
func (g energyGrid) Y(r int) float64    { return g.ranges[r] }
func (g energyGrid) Z(c, r int) float64 { return g.data[r*g.beams+c] }

// handleEnergyMap renders the last processed energy map as a PNG heatmap.
func (ws *WebServer) handleEnergyMap(w http.ResponseWriter, r *http.Request) {
	energy := ws.pipe.EnergyMap()
	if energy == nil {
		httputil.NotFound(w, "no frame processed yet")
		return
	}

	grid := energyGrid{
		data:   energy.Data,
		ranges: ws.cfg.RangeBins(),
		angles: ws.cfg.AngleBins(),
		beams:  energy.Beams,
	}

	p := plot.New()
	p.Title.Text = "Energy Map"
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Range (m)"
	p.Add(plotter.NewHeatMap(grid, palette.Heat(16, 1)))

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render energy map: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		monitoring.Logf("monitor: energy map write failed: %v", err)
	}
}

// handleRateChart renders the per-frame detection count history as a line
// chart.
func (ws *WebServer) handleRateChart(w http.ResponseWriter, r *http.Request) {
	history := ws.mon.History()
	if len(history) == 0 {
		httputil.NotFound(w, "no detection history yet")
		return
	}

	x := make([]string, len(history))
	y := make([]opts.LineData, len(history))
	for i, h := range history {
		x[i] = h.At.Format("15:04:05")
		y[i] = opts.LineData{Value: h.Count}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Detection Rate", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Detections per Frame", Subtitle: fmt.Sprintf("last %d frames", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("detections", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
