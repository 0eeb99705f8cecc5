package engine

import (
	"log"
	"math"
	"sort"
	"time"
)

// Constants for local track maintenance
const (
	// velocitySmoothing is the EMA weight kept by the previous velocity
	// estimate when a new frame-to-frame displacement arrives.
	velocitySmoothing = 0.7
	// defaultFrameDT is assumed for the first frame, before a real frame
	// interval can be measured.
	defaultFrameDT = 1.0 / 15
	// maxFrameDT caps the extrapolation horizon so a stalled feed does not
	// fling predicted boxes off-screen when it resumes.
	maxFrameDT = 1.0
)

// LocalTrack is a person's short-term trajectory within a single camera's
// frame sequence. It carries no cross-camera knowledge; promotion to a
// global identity happens in the registry.
type LocalTrack struct {
	CameraID string
	TrackID  int64 // Unique within the camera's lifetime

	Box    BBox
	VX, VY float32 // Smoothed velocity, pixels/second

	Hits   int // Consecutive successful associations
	Misses int // Consecutive missed frames

	FirstSeen time.Time
	LastSeen  time.Time

	Confidence float32 // Last matched detection confidence
}

// Center returns the current center position of the track.
func (t *LocalTrack) Center() (float32, float32) {
	return t.Box.CenterX(), t.Box.CenterY()
}

// predicted returns the track's box extrapolated dt seconds ahead using the
// smoothed velocity.
func (t *LocalTrack) predicted(dt float32) BBox {
	return t.Box.Offset(t.VX*dt, t.VY*dt)
}

// FrameResult is the per-frame output of a track manager: which tracks were
// matched or created this frame, and which just crossed the loss threshold.
// Lost tracks are reported for soft release, not deleted outright; the
// registry holds their identity slot open for a grace period.
type FrameResult struct {
	Updated []*LocalTrack
	Created []*LocalTrack
	Lost    []*LocalTrack
}

// TrackManager maintains the short-lived local tracks for one camera. It is
// not safe for concurrent use; each camera worker owns exactly one manager
// and feeds it frames in arrival order.
type TrackManager struct {
	cameraID string
	cfg      Config
	tracks   map[int64]*LocalTrack
	nextID   int64

	lastFrame time.Time
	stats     *EngineStats
	logger    *log.Logger
}

// NewTrackManager creates a track manager for one camera feed.
func NewTrackManager(cameraID string, cfg Config, stats *EngineStats, logger *log.Logger) *TrackManager {
	if logger == nil {
		logger = log.Default()
	}
	return &TrackManager{
		cameraID: cameraID,
		cfg:      cfg,
		tracks:   make(map[int64]*LocalTrack),
		nextID:   1,
		stats:    stats,
		logger:   logger,
	}
}

// Observe processes one frame of detections: predicts existing tracks
// forward, associates detections to predictions, spawns tracks for confident
// unmatched detections, and ages out tracks past the miss tolerance.
func (m *TrackManager) Observe(detections []Detection, timestamp time.Time) FrameResult {
	if m.stats != nil {
		m.stats.AddFrame(len(detections))
	}

	// Filter out malformed and low-confidence detections up front. Malformed
	// boxes are a data-quality fault: dropped and logged, never propagated.
	usable := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if err := d.Validate(); err != nil {
			if m.stats != nil {
				m.stats.AddMalformed()
			}
			m.logger.Printf("camera %s: dropped malformed detection: %v", m.cameraID, err)
			continue
		}
		if d.Confidence < m.cfg.MinConfidence {
			if m.stats != nil {
				m.stats.AddLowConfidence()
			}
			continue
		}
		usable = append(usable, d)
	}

	dt := float32(defaultFrameDT)
	if !m.lastFrame.IsZero() {
		elapsed := float32(timestamp.Sub(m.lastFrame).Seconds())
		if elapsed > 0 {
			dt = elapsed
		}
		if dt > maxFrameDT {
			dt = maxFrameDT
		}
	}
	m.lastFrame = timestamp

	// Stable track ordering keeps association deterministic for identical
	// inputs regardless of map iteration order.
	ids := m.sortedTrackIDs()
	predictions := make([]BBox, len(ids))
	for i, id := range ids {
		predictions[i] = m.tracks[id].predicted(dt)
	}

	assignments := m.associate(usable, ids, predictions)

	var result FrameResult
	matched := make(map[int64]bool, len(ids))

	// Update matched tracks.
	for di, ti := range assignments {
		if ti < 0 {
			continue
		}
		track := m.tracks[ids[ti]]
		m.update(track, usable[di], dt, timestamp)
		matched[track.TrackID] = true
		result.Updated = append(result.Updated, track)
	}

	// Age unmatched tracks; report the ones that just crossed the loss
	// threshold and drop them from the manager. Their identity slot stays
	// alive in the registry until the grace period expires.
	for _, id := range ids {
		track := m.tracks[id]
		if matched[id] {
			continue
		}
		track.Misses++
		track.Hits = 0
		if track.Misses > m.cfg.LossTolerance {
			delete(m.tracks, id)
			result.Lost = append(result.Lost, track)
		}
	}

	// Spawn new tracks from unmatched detections.
	for di, ti := range assignments {
		if ti >= 0 {
			continue
		}
		track := m.spawn(usable[di], timestamp)
		result.Created = append(result.Created, track)
	}

	return result
}

// associate builds the detection × track cost matrix and solves it with the
// Hungarian algorithm. Cost blends (1 - IoU) with a motion-gated center
// distance: any IoU overlap beats any distance-only match, and distances
// past the gate are forbidden.
func (m *TrackManager) associate(detections []Detection, ids []int64, predictions []BBox) []int {
	if len(detections) == 0 {
		return nil
	}
	if len(ids) == 0 {
		out := make([]int, len(detections))
		for i := range out {
			out[i] = -1
		}
		return out
	}

	gate := m.cfg.MotionGatePixels
	cost := make([][]float32, len(detections))
	for di, det := range detections {
		row := make([]float32, len(ids))
		for ti, pred := range predictions {
			iou := det.Box.IoU(pred)
			switch {
			case iou > 0:
				row[ti] = 1 - iou
			default:
				dx := det.Box.CenterX() - pred.CenterX()
				dy := det.Box.CenterY() - pred.CenterY()
				dist := float32(math.Hypot(float64(dx), float64(dy)))
				if gate > 0 && dist <= gate {
					row[ti] = 1 + dist/gate
				} else {
					row[ti] = hungarianInf
				}
			}
		}
		cost[di] = row
	}

	return hungarianAssign(cost)
}

// update applies a matched detection to a track, smoothing velocity from the
// frame-to-frame center displacement.
func (m *TrackManager) update(track *LocalTrack, det Detection, dt float32, timestamp time.Time) {
	if dt > 0 {
		instVX := (det.Box.CenterX() - track.Box.CenterX()) / dt
		instVY := (det.Box.CenterY() - track.Box.CenterY()) / dt
		track.VX = velocitySmoothing*track.VX + (1-velocitySmoothing)*instVX
		track.VY = velocitySmoothing*track.VY + (1-velocitySmoothing)*instVY
	}
	track.Box = det.Box
	track.Confidence = det.Confidence
	track.Hits++
	track.Misses = 0
	track.LastSeen = timestamp
}

// spawn creates a new local track from an unmatched detection.
func (m *TrackManager) spawn(det Detection, timestamp time.Time) *LocalTrack {
	track := &LocalTrack{
		CameraID:   m.cameraID,
		TrackID:    m.nextID,
		Box:        det.Box,
		Hits:       1,
		FirstSeen:  timestamp,
		LastSeen:   timestamp,
		Confidence: det.Confidence,
	}
	m.nextID++
	m.tracks[track.TrackID] = track
	return track
}

// sortedTrackIDs returns the live track ids in ascending order.
func (m *TrackManager) sortedTrackIDs() []int64 {
	ids := make([]int64, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns a live track by id, or nil if it has been lost.
func (m *TrackManager) Get(trackID int64) *LocalTrack {
	return m.tracks[trackID]
}

// ActiveTracks returns the live tracks for this camera.
func (m *TrackManager) ActiveTracks() []*LocalTrack {
	out := make([]*LocalTrack, 0, len(m.tracks))
	for _, id := range m.sortedTrackIDs() {
		out = append(out, m.tracks[id])
	}
	return out
}

// Len returns the number of live tracks.
func (m *TrackManager) Len() int { return len(m.tracks) }
