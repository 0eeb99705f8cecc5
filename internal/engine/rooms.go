package engine

import (
	"fmt"
	"sort"
	"time"
)

// RoomOccupancy is the deduplicated occupancy of one room at a point in
// time: the number of distinct people currently believed present, not the
// number of camera tracks.
type RoomOccupancy struct {
	RoomID          string    `json:"room_id"`
	Name            string    `json:"name"`
	UniqueCount     int       `json:"unique_count"`
	ActiveGlobalIDs []int64   `json:"active_global_ids"`
	Timestamp       time.Time `json:"timestamp"`
}

// RoomAggregator derives per-room unique person counts from the registry's
// current global identities. Counts are recomputed on query; each query runs
// under the registry lock so it reflects all mutations committed before the
// call returned.
type RoomAggregator struct {
	registry *Registry
	rooms    map[string]RoomConfig
}

// NewRoomAggregator creates an aggregator over the configured rooms.
func NewRoomAggregator(registry *Registry, rooms map[string]RoomConfig) *RoomAggregator {
	return &RoomAggregator{
		registry: registry,
		rooms:    rooms,
	}
}

// Count returns the unique person count and the active global ids for one
// room. An identity counts when at least one of its camera slots belongs to
// the room and its last-seen is inside the active window.
func (a *RoomAggregator) Count(roomID string, now time.Time) (RoomOccupancy, error) {
	room, ok := a.rooms[roomID]
	if !ok {
		return RoomOccupancy{}, fmt.Errorf("unknown room %q", roomID)
	}

	count, ids := a.registry.CountActive(room.Cameras, now)
	return RoomOccupancy{
		RoomID:          roomID,
		Name:            room.Name,
		UniqueCount:     count,
		ActiveGlobalIDs: ids,
		Timestamp:       now,
	}, nil
}

// Snapshot returns the occupancy of every configured room, sorted by room id.
func (a *RoomAggregator) Snapshot(now time.Time) []RoomOccupancy {
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]RoomOccupancy, 0, len(ids))
	for _, id := range ids {
		occ, err := a.Count(id, now)
		if err != nil {
			continue
		}
		out = append(out, occ)
	}
	return out
}

// RoomForCamera returns the room a camera belongs to, or "" if unassigned.
func (a *RoomAggregator) RoomForCamera(cameraID string) string {
	for roomID, room := range a.rooms {
		for _, cam := range room.Cameras {
			if cam == cameraID {
				return roomID
			}
		}
	}
	return ""
}

// Rooms returns the configured room ids in ascending order.
func (a *RoomAggregator) Rooms() []string {
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
