package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/security"
)

// OccupancyPlotter records room occupancy over time for offline inspection.
// Call Sample() with engine snapshots during a run, then GeneratePlots()
// to write one PNG timeline per room.
type OccupancyPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	// samples holds per-room time series keyed by room id.
	samples map[string][]occupancyPoint

	startTime  time.Time
	sampleIdx  int
	thresholds map[string]int
}

type occupancyPoint struct {
	SampleIdx   int
	Timestamp   time.Time
	UniqueCount int
}

// NewOccupancyPlotter creates a plotter. Thresholds, keyed by room id, draw
// a reference line on each room's plot; zero or missing entries are skipped.
func NewOccupancyPlotter(thresholds map[string]int) *OccupancyPlotter {
	return &OccupancyPlotter{
		samples:    make(map[string][]occupancyPoint),
		thresholds: thresholds,
	}
}

// Start initializes the plotter for a new run.
func (op *OccupancyPlotter) Start(outputDir string) error {
	op.mu.Lock()
	defer op.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	op.outputDir = outputDir
	op.enabled = true
	op.startTime = time.Time{}
	op.sampleIdx = 0
	op.samples = make(map[string][]occupancyPoint)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (op *OccupancyPlotter) Stop() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (op *OccupancyPlotter) IsEnabled() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.enabled
}

// Sample records one occupancy snapshot for every room.
func (op *OccupancyPlotter) Sample(snapshot []engine.RoomOccupancy) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if !op.enabled || len(snapshot) == 0 {
		return
	}

	now := time.Now()
	if op.startTime.IsZero() {
		op.startTime = now
	}
	op.sampleIdx++

	for _, occ := range snapshot {
		op.samples[occ.RoomID] = append(op.samples[occ.RoomID], occupancyPoint{
			SampleIdx:   op.sampleIdx,
			Timestamp:   now,
			UniqueCount: occ.UniqueCount,
		})
	}
}

// GeneratePlots creates one PNG per sampled room. Returns the number of
// plots written and any error.
func (op *OccupancyPlotter) GeneratePlots() (int, error) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(op.samples) == 0 {
		return 0, nil
	}

	var rooms []string
	for roomID := range op.samples {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)

	plotCount := 0
	for _, roomID := range rooms {
		if err := op.generateRoomPlot(roomID, op.samples[roomID]); err != nil {
			return plotCount, fmt.Errorf("room %s: %w", roomID, err)
		}
		plotCount++
	}
	return plotCount, nil
}

func (op *OccupancyPlotter) generateRoomPlot(roomID string, points []occupancyPoint) error {
	if len(points) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Room %s - Unique Occupancy", roomID)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Unique people"

	sort.Slice(points, func(a, b int) bool {
		return points[a].SampleIdx < points[b].SampleIdx
	})

	pts := make(plotter.XYs, 0, len(points))
	for _, s := range points {
		pts = append(pts, plotter.XY{X: float64(s.SampleIdx), Y: float64(s.UniqueCount)})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 38, G: 130, B: 142, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("occupancy", line)

	if threshold := op.thresholds[roomID]; threshold > 0 {
		thrPts := plotter.XYs{
			{X: float64(points[0].SampleIdx), Y: float64(threshold)},
			{X: float64(points[len(points)-1].SampleIdx), Y: float64(threshold)},
		}
		thrLine, err := plotter.NewLine(thrPts)
		if err != nil {
			return err
		}
		thrLine.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
		thrLine.Width = vg.Points(1)
		thrLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(thrLine)
		p.Legend.Add("alert threshold", thrLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	outFile := filepath.Join(op.outputDir, fmt.Sprintf("room_%s_occupancy.png", security.SanitizeFilename(roomID)))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, outFile); err != nil {
		return fmt.Errorf("save occupancy plot: %w", err)
	}
	return nil
}

// GetOutputDir returns the current output directory for plots.
func (op *OccupancyPlotter) GetOutputDir() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.outputDir
}

// GetSampleCount returns the total number of samples collected.
func (op *OccupancyPlotter) GetSampleCount() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	count := 0
	for _, samples := range op.samples {
		count += len(samples)
	}
	return count
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
func MakePlotOutputDir(baseDir string) string {
	return filepath.Join(baseDir, "run_"+FormatTimestamp(time.Now()))
}
