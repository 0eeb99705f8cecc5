package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/engine"
)

func snapshotAt(count int) []engine.RoomOccupancy {
	return []engine.RoomOccupancy{
		{RoomID: "lobby", Name: "Main Lobby", UniqueCount: count, Timestamp: time.Now()},
	}
}

func TestOccupancyPlotter_StartStop(t *testing.T) {
	op := NewOccupancyPlotter(map[string]int{"lobby": 5})
	assert.False(t, op.IsEnabled())

	require.NoError(t, op.Start(t.TempDir()))
	assert.True(t, op.IsEnabled())

	op.Stop()
	assert.False(t, op.IsEnabled())
}

func TestOccupancyPlotter_SampleRequiresStart(t *testing.T) {
	op := NewOccupancyPlotter(nil)
	op.Sample(snapshotAt(3))
	assert.Equal(t, 0, op.GetSampleCount())
}

func TestOccupancyPlotter_SampleCounting(t *testing.T) {
	op := NewOccupancyPlotter(nil)
	require.NoError(t, op.Start(t.TempDir()))

	op.Sample(snapshotAt(1))
	op.Sample(snapshotAt(2))
	op.Sample(nil) // empty snapshots are ignored
	op.Sample(snapshotAt(3))

	assert.Equal(t, 3, op.GetSampleCount())
}

func TestOccupancyPlotter_GeneratePlots(t *testing.T) {
	dir := t.TempDir()
	op := NewOccupancyPlotter(map[string]int{"lobby": 5})
	require.NoError(t, op.Start(dir))

	for i := 1; i <= 5; i++ {
		op.Sample([]engine.RoomOccupancy{
			{RoomID: "lobby", UniqueCount: i, Timestamp: time.Now()},
			{RoomID: "atrium", UniqueCount: i * 2, Timestamp: time.Now()},
		})
	}
	op.Stop()

	n, err := op.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, name := range []string{"room_lobby_occupancy.png", "room_atrium_occupancy.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}
}

func TestOccupancyPlotter_GeneratePlotsWithoutSamples(t *testing.T) {
	op := NewOccupancyPlotter(nil)
	require.NoError(t, op.Start(t.TempDir()))

	n, err := op.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOccupancyPlotter_GeneratePlotsWithoutStart(t *testing.T) {
	op := NewOccupancyPlotter(nil)
	_, err := op.GeneratePlots()
	assert.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 10, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "20260110_143005", FormatTimestamp(ts))
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("/tmp/plots")
	assert.Contains(t, dir, "/tmp/plots/run_")
}
