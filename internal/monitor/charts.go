// Package monitor provides quick visual inspection of the occupancy
// engine: HTML charts rendered with go-echarts and PNG timelines
// rendered with gonum/plot. These are debugging surfaces, not the
// product UI.
package monitor

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

const defaultChartWindow = time.Hour
const maxChartSamples = 5000

// Monitor serves the debug chart endpoints. The store is required for
// history charts; the engine is required for the live snapshot chart.
type Monitor struct {
	engine *engine.Engine
	store  *db.DB
	logger *log.Logger
}

// NewMonitor creates a chart server over the engine and store.
func NewMonitor(eng *engine.Engine, store *db.DB, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{engine: eng, store: store, logger: logger}
}

// Attach registers the chart routes on the mux.
func (m *Monitor) Attach(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/occupancy", m.handleOccupancyChart)
	mux.HandleFunc("/debug/charts/rooms", m.handleRoomsChart)
	mux.HandleFunc("/debug/charts/alerts", m.handleAlertsChart)
}

// handleOccupancyChart renders a line chart of one room's occupancy history.
// Query params:
//   - room (required)
//   - window_secs (optional; default 3600)
func (m *Monitor) handleOccupancyChart(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "occupancy store not configured")
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		httputil.BadRequest(w, "room query parameter is required")
		return
	}
	window := defaultChartWindow
	if v := r.URL.Query().Get("window_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			window = time.Duration(secs) * time.Second
		}
	}

	samples, err := m.store.ListOccupancy(roomID, time.Now().Add(-window), maxChartSamples)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load occupancy history: %v", err))
		return
	}
	if len(samples) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no occupancy samples in window")
		return
	}

	// ListOccupancy returns newest first; reverse for a left-to-right timeline.
	x := make([]string, 0, len(samples))
	y := make([]opts.LineData, 0, len(samples))
	threshold := m.engine.AlertThreshold(roomID)
	thresholdLine := make([]opts.LineData, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		x = append(x, s.At.Format("15:04:05"))
		y = append(y, opts.LineData{Value: s.UniqueCount})
		if threshold > 0 {
			thresholdLine = append(thresholdLine, opts.LineData{Value: threshold})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Room Occupancy", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Occupancy: %s", roomID), Subtitle: fmt.Sprintf("samples=%d window=%s", len(samples), window)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Unique people", MinInterval: 1}),
	)
	line.SetXAxis(x).
		AddSeries("occupancy", y, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	if threshold > 0 {
		line.AddSeries("alert threshold", thresholdLine,
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#ff5252"}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRoomsChart renders a bar chart of the current count in every room.
func (m *Monitor) handleRoomsChart(w http.ResponseWriter, r *http.Request) {
	snapshot := m.engine.Snapshot()
	if len(snapshot) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no rooms configured")
		return
	}

	x := make([]string, 0, len(snapshot))
	counts := make([]opts.BarData, 0, len(snapshot))
	thresholds := make([]opts.BarData, 0, len(snapshot))
	for _, occ := range snapshot {
		x = append(x, occ.RoomID)
		counts = append(counts, opts.BarData{Value: occ.UniqueCount})
		thresholds = append(thresholds, opts.BarData{Value: m.engine.AlertThreshold(occ.RoomID)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Room Occupancy", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("occupancy", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("threshold", thresholds)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAlertsChart renders recent alert counts per room as a bar chart.
func (m *Monitor) handleAlertsChart(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "occupancy store not configured")
		return
	}
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 10000 {
			limit = parsed
		}
	}
	alerts, err := m.store.ListAlerts("", limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alerts: %v", err))
		return
	}
	if len(alerts) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no alerts recorded")
		return
	}

	byRoom := make(map[string]int)
	for _, a := range alerts {
		byRoom[a.RoomID]++
	}
	rooms := make([]string, 0, len(byRoom))
	for roomID := range byRoom {
		rooms = append(rooms, roomID)
	}
	// Order by the engine's room list so the chart is stable across reloads.
	ordered := make([]string, 0, len(rooms))
	seen := make(map[string]bool)
	for _, occ := range m.engine.Snapshot() {
		if byRoom[occ.RoomID] > 0 {
			ordered = append(ordered, occ.RoomID)
			seen[occ.RoomID] = true
		}
	}
	for _, roomID := range rooms {
		if !seen[roomID] {
			ordered = append(ordered, roomID)
		}
	}

	y := make([]opts.BarData, 0, len(ordered))
	for _, roomID := range ordered {
		y = append(y, opts.BarData{Value: byRoom[roomID]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Alerts by Room", Subtitle: fmt.Sprintf("last %d alerts", len(alerts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(ordered).
		AddSeries("alerts", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
