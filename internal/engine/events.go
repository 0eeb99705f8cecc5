package engine

import (
	"time"

	"github.com/google/uuid"
)

// EventKind labels a global identity lifecycle transition.
type EventKind string

const (
	// EventCreated fires when the registry mints a new global identity.
	EventCreated EventKind = "created"
	// EventMatched fires when a local track scores a first-time match
	// against an existing identity, typically from another camera.
	EventMatched EventKind = "matched"
	// EventReattached fires when a track reclaims an identity's held-open
	// slot on the same camera inside the grace period.
	EventReattached EventKind = "reattached"
	// EventEvicted fires when the sweeper retires a stale identity.
	EventEvicted EventKind = "evicted"
)

// IdentityEvent is an audit record of one identity lifecycle transition,
// consumed by persistence collaborators.
type IdentityEvent struct {
	EventID  string    `json:"event_id"`
	Kind     EventKind `json:"kind"`
	GlobalID int64     `json:"global_id"`
	CameraID string    `json:"camera_id,omitempty"`
	RoomID   string    `json:"room_id,omitempty"`
	At       time.Time `json:"at"`
}

// EventSink receives identity lifecycle events. Implementations must not
// block: events are emitted from inside the registry critical section.
type EventSink interface {
	RecordIdentityEvent(ev IdentityEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ev IdentityEvent)

// RecordIdentityEvent calls f(ev).
func (f EventSinkFunc) RecordIdentityEvent(ev IdentityEvent) { f(ev) }

func newEvent(kind EventKind, globalID int64, cameraID, roomID string, at time.Time) IdentityEvent {
	return IdentityEvent{
		EventID:  uuid.NewString(),
		Kind:     kind,
		GlobalID: globalID,
		CameraID: cameraID,
		RoomID:   roomID,
		At:       at,
	}
}
