package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertIntent asks a notification-delivery collaborator to send one alert.
// Delivery success or failure is not the engine's concern.
type AlertIntent struct {
	IntentID  string    `json:"intent_id"`
	RoomID    string    `json:"room_id"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// alertState holds the per-room suppression state: the set of counts already
// notified for, so a plateaued count never re-fires and a transient dip back
// to an already-notified count stays silent.
type alertState struct {
	threshold   int
	lastCount   int
	notifiedFor map[int]bool
}

// AlertMonitor watches room occupancy and emits at most one intent per
// distinct threshold crossing count. Dropping below threshold re-arms the
// room.
type AlertMonitor struct {
	mu     sync.Mutex
	states map[string]*alertState
}

// NewAlertMonitor builds the per-room alert state machines from config.
// Rooms with a zero threshold have alerting disabled.
func NewAlertMonitor(rooms map[string]RoomConfig) *AlertMonitor {
	states := make(map[string]*alertState, len(rooms))
	for roomID, room := range rooms {
		if room.AlertThreshold <= 0 {
			continue
		}
		states[roomID] = &alertState{
			threshold:   room.AlertThreshold,
			notifiedFor: make(map[int]bool),
		}
	}
	return &AlertMonitor{states: states}
}

// Observe feeds one recomputed room count into the state machine. It returns
// an AlertIntent when the count is at or above threshold and has not already
// been notified for, or nil otherwise.
func (m *AlertMonitor) Observe(roomID string, count int, now time.Time) *AlertIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[roomID]
	if !ok {
		return nil
	}
	state.lastCount = count

	if count < state.threshold {
		// Re-arm: the next rise past threshold may notify again.
		if len(state.notifiedFor) > 0 {
			state.notifiedFor = make(map[int]bool)
		}
		return nil
	}

	if state.notifiedFor[count] {
		return nil
	}
	state.notifiedFor[count] = true

	return &AlertIntent{
		IntentID:  uuid.NewString(),
		RoomID:    roomID,
		Count:     count,
		Threshold: state.threshold,
		Timestamp: now,
	}
}

// Threshold returns the configured threshold for a room, or 0 when alerting
// is disabled.
func (m *AlertMonitor) Threshold(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[roomID]; ok {
		return state.threshold
	}
	return 0
}

// LastCount returns the most recently observed count for a room.
func (m *AlertMonitor) LastCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[roomID]; ok {
		return state.lastCount
	}
	return 0
}
