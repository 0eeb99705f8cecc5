package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/occupancy.report/internal/engine"
)

// OccupancySample is one persisted room occupancy reading.
type OccupancySample struct {
	RoomID      string    `json:"room_id"`
	UniqueCount int       `json:"unique_count"`
	ActiveIDs   []int64   `json:"active_global_ids"`
	At          time.Time `json:"at"`
}

// AlertRecord is one persisted alert intent.
type AlertRecord struct {
	IntentID  string    `json:"intent_id"`
	RoomID    string    `json:"room_id"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}

// IdentityEventRecord is one persisted identity lifecycle event.
type IdentityEventRecord struct {
	EventID  string    `json:"event_id"`
	Kind     string    `json:"kind"`
	GlobalID int64     `json:"global_id"`
	CameraID string    `json:"camera_id,omitempty"`
	RoomID   string    `json:"room_id,omitempty"`
	At       time.Time `json:"at"`
}

// OccupancyStats summarises a room's occupancy over a time range.
type OccupancyStats struct {
	RoomID  string  `json:"room_id"`
	Samples int     `json:"samples"`
	Peak    int     `json:"peak"`
	P50     float64 `json:"p50"`
	P85     float64 `json:"p85"`
	Mean    float64 `json:"mean"`
}

// SyncRooms upserts the configured room and camera rows so history queries
// can join against current membership. Called once at startup.
func (db *DB) SyncRooms(rooms map[string]engine.RoomConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin room sync: %w", err)
	}
	defer tx.Rollback()

	for roomID, room := range rooms {
		if _, err := tx.Exec(`
			INSERT INTO rooms (room_id, name, alert_threshold, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(room_id) DO UPDATE SET
				name = excluded.name,
				alert_threshold = excluded.alert_threshold,
				updated_at = CURRENT_TIMESTAMP
		`, roomID, room.Name, room.AlertThreshold); err != nil {
			return fmt.Errorf("upsert room %s: %w", roomID, err)
		}
		for _, cam := range room.Cameras {
			if _, err := tx.Exec(`
				INSERT INTO cameras (camera_id, room_id, updated_at)
				VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(camera_id) DO UPDATE SET
					room_id = excluded.room_id,
					updated_at = CURRENT_TIMESTAMP
			`, cam, roomID); err != nil {
				return fmt.Errorf("upsert camera %s: %w", cam, err)
			}
		}
	}

	return tx.Commit()
}

// RecordOccupancy inserts one occupancy sample.
func (db *DB) RecordOccupancy(occ engine.RoomOccupancy) error {
	ids, err := json.Marshal(occ.ActiveGlobalIDs)
	if err != nil {
		return fmt.Errorf("marshal active ids: %w", err)
	}
	if occ.ActiveGlobalIDs == nil {
		ids = []byte("[]")
	}
	_, err = db.Exec(`
		INSERT INTO occupancy_samples (room_id, unique_count, active_ids, ts_unix_nanos)
		VALUES (?, ?, ?, ?)
	`, occ.RoomID, occ.UniqueCount, string(ids), occ.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert occupancy sample: %w", err)
	}
	return nil
}

// RecordAlert inserts one alert intent into the log.
func (db *DB) RecordAlert(intent engine.AlertIntent) error {
	_, err := db.Exec(`
		INSERT INTO alert_log (intent_id, room_id, count, threshold, ts_unix_nanos)
		VALUES (?, ?, ?, ?, ?)
	`, intent.IntentID, intent.RoomID, intent.Count, intent.Threshold, intent.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecordIdentityEvent inserts one identity lifecycle event.
func (db *DB) RecordIdentityEvent(ev engine.IdentityEvent) error {
	_, err := db.Exec(`
		INSERT INTO identity_events (event_id, kind, global_id, camera_id, room_id, ts_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.EventID, string(ev.Kind), ev.GlobalID, ev.CameraID, ev.RoomID, ev.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert identity event: %w", err)
	}
	return nil
}

// ListOccupancy returns samples for a room since the given time, newest
// first, up to limit rows.
func (db *DB) ListOccupancy(roomID string, since time.Time, limit int) ([]OccupancySample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`
		SELECT room_id, unique_count, active_ids, ts_unix_nanos
		FROM occupancy_samples
		WHERE room_id = ? AND ts_unix_nanos >= ?
		ORDER BY ts_unix_nanos DESC
		LIMIT ?
	`, roomID, since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query occupancy samples: %w", err)
	}
	defer rows.Close()

	var samples []OccupancySample
	for rows.Next() {
		var s OccupancySample
		var ids string
		var nanos int64
		if err := rows.Scan(&s.RoomID, &s.UniqueCount, &ids, &nanos); err != nil {
			return nil, fmt.Errorf("scan occupancy sample: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &s.ActiveIDs); err != nil {
			return nil, fmt.Errorf("decode active ids: %w", err)
		}
		s.At = time.Unix(0, nanos)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// OccupancyRollup computes peak and percentile occupancy for a room over a
// time range.
func (db *DB) OccupancyRollup(roomID string, since time.Time) (OccupancyStats, error) {
	rows, err := db.Query(`
		SELECT unique_count FROM occupancy_samples
		WHERE room_id = ? AND ts_unix_nanos >= ?
	`, roomID, since.UnixNano())
	if err != nil {
		return OccupancyStats{}, fmt.Errorf("query occupancy rollup: %w", err)
	}
	defer rows.Close()

	var counts []float64
	peak := 0
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return OccupancyStats{}, fmt.Errorf("scan count: %w", err)
		}
		counts = append(counts, float64(c))
		if c > peak {
			peak = c
		}
	}
	if err := rows.Err(); err != nil {
		return OccupancyStats{}, err
	}

	stats := OccupancyStats{RoomID: roomID, Samples: len(counts), Peak: peak}
	if len(counts) > 0 {
		sort.Float64s(counts)
		stats.Mean = stat.Mean(counts, nil)
		stats.P50 = stat.Quantile(0.5, stat.Empirical, counts, nil)
		stats.P85 = stat.Quantile(0.85, stat.Empirical, counts, nil)
	}
	return stats, nil
}

// ListAlerts returns the alert log, newest first. Pass roomID "" for all
// rooms.
func (db *DB) ListAlerts(roomID string, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if roomID == "" {
		rows, err = db.Query(`
			SELECT intent_id, room_id, count, threshold, ts_unix_nanos
			FROM alert_log ORDER BY ts_unix_nanos DESC LIMIT ?
		`, limit)
	} else {
		rows, err = db.Query(`
			SELECT intent_id, room_id, count, threshold, ts_unix_nanos
			FROM alert_log WHERE room_id = ? ORDER BY ts_unix_nanos DESC LIMIT ?
		`, roomID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var nanos int64
		if err := rows.Scan(&a.IntentID, &a.RoomID, &a.Count, &a.Threshold, &nanos); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.At = time.Unix(0, nanos)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListIdentityEvents returns lifecycle events, newest first. Pass globalID 0
// for all identities.
func (db *DB) ListIdentityEvents(globalID int64, limit int) ([]IdentityEventRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows *sql.Rows
	var err error
	if globalID == 0 {
		rows, err = db.Query(`
			SELECT event_id, kind, global_id, camera_id, room_id, ts_unix_nanos
			FROM identity_events ORDER BY ts_unix_nanos DESC LIMIT ?
		`, limit)
	} else {
		rows, err = db.Query(`
			SELECT event_id, kind, global_id, camera_id, room_id, ts_unix_nanos
			FROM identity_events WHERE global_id = ? ORDER BY ts_unix_nanos DESC LIMIT ?
		`, globalID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query identity events: %w", err)
	}
	defer rows.Close()

	var events []IdentityEventRecord
	for rows.Next() {
		var e IdentityEventRecord
		var nanos int64
		if err := rows.Scan(&e.EventID, &e.Kind, &e.GlobalID, &e.CameraID, &e.RoomID, &nanos); err != nil {
			return nil, fmt.Errorf("scan identity event: %w", err)
		}
		e.At = time.Unix(0, nanos)
		events = append(events, e)
	}
	return events, rows.Err()
}
