package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/engine"
)

// fixedSource returns the same snapshot on every sample.
type fixedSource struct {
	snapshot []engine.RoomOccupancy
}

func (s *fixedSource) Snapshot() []engine.RoomOccupancy {
	out := make([]engine.RoomOccupancy, len(s.snapshot))
	for i, occ := range s.snapshot {
		occ.Timestamp = time.Now()
		out[i] = occ
	}
	return out
}

func TestRecorder_SamplesPeriodically(t *testing.T) {
	database := testDB(t)
	source := &fixedSource{snapshot: []engine.RoomOccupancy{
		{RoomID: "lobby", Name: "Main Lobby", UniqueCount: 3, ActiveGlobalIDs: []int64{1, 2, 3}},
	}}

	rec := NewRecorder(database, source, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rec.Run(ctx)
	}()

	since := time.Now().Add(-time.Minute)
	require.Eventually(t, func() bool {
		samples, err := database.ListOccupancy("lobby", since, 100)
		return err == nil && len(samples) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	samples, err := database.ListOccupancy("lobby", since, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, samples[0].UniqueCount)
}

func TestRecorder_ZeroIntervalRefusesToStart(t *testing.T) {
	database := testDB(t)
	rec := NewRecorder(database, &fixedSource{}, 0, nil)
	require.NoError(t, rec.Run(context.Background()))
}

func TestRecorder_FinalSampleOnShutdown(t *testing.T) {
	database := testDB(t)
	source := &fixedSource{snapshot: []engine.RoomOccupancy{
		{RoomID: "lobby", Name: "Main Lobby", UniqueCount: 1, ActiveGlobalIDs: []int64{9}},
	}}

	// A long interval means the only write comes from the shutdown path.
	rec := NewRecorder(database, source, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rec.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	samples, err := database.ListOccupancy("lobby", time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, []int64{9}, samples[0].ActiveIDs)
}
