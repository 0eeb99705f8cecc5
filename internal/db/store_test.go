package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/occupancy.report/internal/engine"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp("migrations"))
	return db
}

func TestSyncRooms_Upserts(t *testing.T) {
	db := testDB(t)

	rooms := map[string]engine.RoomConfig{
		"lobby": {Name: "Main Lobby", Cameras: []string{"cam-1", "cam-2"}, AlertThreshold: 10},
	}
	require.NoError(t, db.SyncRooms(rooms))

	// Re-sync with a changed threshold and camera reassignment: same rows,
	// updated values.
	rooms["lobby"] = engine.RoomConfig{Name: "Main Lobby", Cameras: []string{"cam-1"}, AlertThreshold: 12}
	require.NoError(t, db.SyncRooms(rooms))

	var threshold int
	require.NoError(t, db.QueryRow(
		`SELECT alert_threshold FROM rooms WHERE room_id = 'lobby'`).Scan(&threshold))
	assert.Equal(t, 12, threshold)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecordAndListOccupancy(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SyncRooms(map[string]engine.RoomConfig{
		"lobby": {Name: "Lobby", Cameras: []string{"cam-1"}},
	}))

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i, count := range []int{1, 3, 2} {
		require.NoError(t, db.RecordOccupancy(engine.RoomOccupancy{
			RoomID:          "lobby",
			UniqueCount:     count,
			ActiveGlobalIDs: []int64{1, 2},
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	samples, err := db.ListOccupancy("lobby", base, 10)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	// Newest first.
	assert.Equal(t, 2, samples[0].UniqueCount)
	assert.Equal(t, 3, samples[1].UniqueCount)
	assert.Equal(t, 1, samples[2].UniqueCount)
	assert.Equal(t, []int64{1, 2}, samples[0].ActiveIDs)
	assert.True(t, samples[0].At.Equal(base.Add(2*time.Minute)))

	// The since bound excludes earlier samples.
	samples, err = db.ListOccupancy("lobby", base.Add(90*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	// Limit caps the result set.
	samples, err = db.ListOccupancy("lobby", base, 2)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestRecordOccupancy_NilIDs(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.RecordOccupancy(engine.RoomOccupancy{
		RoomID:    "lobby",
		Timestamp: time.Now(),
	}))

	samples, err := db.ListOccupancy("lobby", time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Empty(t, samples[0].ActiveIDs)
}

func TestOccupancyRollup(t *testing.T) {
	db := testDB(t)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i, count := range []int{1, 2, 2, 3, 10} {
		require.NoError(t, db.RecordOccupancy(engine.RoomOccupancy{
			RoomID:      "lobby",
			UniqueCount: count,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	stats, err := db.OccupancyRollup("lobby", base)
	require.NoError(t, err)
	assert.Equal(t, "lobby", stats.RoomID)
	assert.Equal(t, 5, stats.Samples)
	assert.Equal(t, 10, stats.Peak)
	assert.InDelta(t, 3.6, stats.Mean, 1e-9)
	assert.Equal(t, float64(2), stats.P50)
}

func TestOccupancyRollup_Empty(t *testing.T) {
	db := testDB(t)
	stats, err := db.OccupancyRollup("lobby", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Samples)
	assert.Equal(t, 0, stats.Peak)
}

func TestRecordAndListAlerts(t *testing.T) {
	db := testDB(t)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i, roomID := range []string{"lobby", "atrium", "lobby"} {
		require.NoError(t, db.RecordAlert(engine.AlertIntent{
			IntentID:  uuid.NewString(),
			RoomID:    roomID,
			Count:     5 + i,
			Threshold: 5,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := db.ListAlerts("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 7, all[0].Count) // newest first

	lobby, err := db.ListAlerts("lobby", 10)
	require.NoError(t, err)
	assert.Len(t, lobby, 2)
	for _, a := range lobby {
		assert.Equal(t, "lobby", a.RoomID)
	}
}

func TestRecordAlert_DuplicateIntentID(t *testing.T) {
	db := testDB(t)

	intent := engine.AlertIntent{
		IntentID:  uuid.NewString(),
		RoomID:    "lobby",
		Count:     5,
		Threshold: 5,
		Timestamp: time.Now(),
	}
	require.NoError(t, db.RecordAlert(intent))
	assert.Error(t, db.RecordAlert(intent), "intent ids are primary keys")
}

func TestRecordAndListIdentityEvents(t *testing.T) {
	db := testDB(t)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	events := []engine.IdentityEvent{
		{EventID: uuid.NewString(), Kind: engine.EventCreated, GlobalID: 1, CameraID: "cam-1", RoomID: "lobby", At: base},
		{EventID: uuid.NewString(), Kind: engine.EventReattached, GlobalID: 1, CameraID: "cam-2", RoomID: "lobby", At: base.Add(time.Second)},
		{EventID: uuid.NewString(), Kind: engine.EventCreated, GlobalID: 2, CameraID: "cam-1", RoomID: "lobby", At: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, db.RecordIdentityEvent(ev))
	}

	all, err := db.ListIdentityEvents(0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, string(engine.EventCreated), all[0].Kind)
	assert.Equal(t, int64(2), all[0].GlobalID)

	one, err := db.ListIdentityEvents(1, 10)
	require.NoError(t, err)
	require.Len(t, one, 2)
	for _, ev := range one {
		assert.Equal(t, int64(1), ev.GlobalID)
	}
}

func TestMigrateVersion(t *testing.T) {
	db := testDB(t)
	version, dirty, err := db.MigrateVersion("migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.GreaterOrEqual(t, version, uint(1))
}
