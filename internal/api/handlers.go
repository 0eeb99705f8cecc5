package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/httputil"
)

const defaultHistoryLimit = 500

// detectionFrame is the ingest payload for one camera frame.
type detectionFrame struct {
	Timestamp  *int64             `json:"ts_unix_nanos,omitempty"`
	Detections []detectionPayload `json:"detections"`
}

type detectionPayload struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	W          float32 `json:"w"`
	H          float32 `json:"h"`
	Confidence float32 `json:"confidence"`
}

// embeddingPayload is the ingest payload for one appearance embedding.
type embeddingPayload struct {
	CameraID string    `json:"camera_id"`
	TrackID  int64     `json:"track_id"`
	Vector   []float64 `json:"vector"`
	Quality  float64   `json:"quality"`
}

// listRooms handles GET /api/rooms with the current occupancy of every room.
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Snapshot())
}

// roomSubresource dispatches /api/rooms/{id}/{occupancy|history|stats}.
func (s *Server) roomSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		httputil.NotFound(w, "unknown room resource")
		return
	}
	roomID := parts[0]
	switch parts[1] {
	case "occupancy":
		s.roomOccupancy(w, roomID)
	case "history":
		s.roomHistory(w, r, roomID)
	case "stats":
		s.roomStats(w, r, roomID)
	default:
		httputil.NotFound(w, "unknown room resource")
	}
}

func (s *Server) roomOccupancy(w http.ResponseWriter, roomID string) {
	occ, err := s.engine.Occupancy(roomID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, occ)
}

func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request, roomID string) {
	if s.store == nil {
		httputil.NotFound(w, "no occupancy store attached")
		return
	}
	since, err := parseSince(r, 24*time.Hour)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
	}
	samples, err := s.store.ListOccupancy(roomID, since, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) roomStats(w http.ResponseWriter, r *http.Request, roomID string) {
	if s.store == nil {
		httputil.NotFound(w, "no occupancy store attached")
		return
	}
	since, err := parseSince(r, 24*time.Hour)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	stats, err := s.store.OccupancyRollup(roomID, since)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, stats)
}

// listIdentities handles GET /api/identities with the live identity registry.
func (s *Server) listIdentities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Identities())
}

// listIdentityEvents handles GET /api/identities/events from the audit log.
func (s *Server) listIdentityEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no occupancy store attached")
		return
	}
	var globalID int64
	if v := r.URL.Query().Get("global_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "global_id must be an integer")
			return
		}
		globalID = id
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.store.ListIdentityEvents(globalID, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, events)
}

// listAlerts handles GET /api/alerts from the alert log.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no occupancy store attached")
		return
	}
	roomID := r.URL.Query().Get("room")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	alerts, err := s.store.ListAlerts(roomID, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, alerts)
}

// showStats handles GET /api/engine/stats with the running engine counters.
func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Stats())
}

// showConfig handles GET /api/engine/config with the effective tuning values.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Config())
}

// cameraSubresource dispatches POST /api/cameras/{id}/detections.
func (s *Server) cameraSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cameras/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "detections" {
		httputil.NotFound(w, "unknown camera resource")
		return
	}
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	cameraID := parts[0]

	var frame detectionFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid detection frame: %v", err))
		return
	}
	at := time.Now()
	if frame.Timestamp != nil {
		at = time.Unix(0, *frame.Timestamp)
	}
	detections := make([]engine.Detection, 0, len(frame.Detections))
	for _, d := range frame.Detections {
		detections = append(detections, engine.Detection{
			CameraID:   cameraID,
			Box:        engine.BBox{X: d.X, Y: d.Y, W: d.W, H: d.H},
			Confidence: d.Confidence,
			At:         at,
		})
	}
	if err := s.engine.IngestDetections(cameraID, detections, at); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"camera_id":  cameraID,
		"detections": len(detections),
	})
}

// ingestEmbedding handles POST /api/embeddings.
func (s *Server) ingestEmbedding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var payload embeddingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid embedding: %v", err))
		return
	}
	if payload.CameraID == "" {
		httputil.BadRequest(w, "camera_id is required")
		return
	}
	if len(payload.Vector) == 0 {
		httputil.BadRequest(w, "vector is required")
		return
	}
	if err := s.engine.IngestEmbedding(payload.CameraID, payload.TrackID, payload.Vector, payload.Quality); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"camera_id": payload.CameraID,
		"track_id":  payload.TrackID,
	})
}

// parseSince reads an optional ?since= query (RFC 3339 or unix seconds) and
// falls back to now minus the default window.
func parseSince(r *http.Request, defaultWindow time.Duration) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Now().Add(-defaultWindow), nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, fmt.Errorf("since must be RFC 3339 or unix seconds")
}
