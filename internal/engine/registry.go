package engine

import (
	"log"
	"sort"
	"sync"
	"time"
)

// GlobalIdentity is one physical person fused across cameras. Identities are
// owned by the Registry and mutated only inside its critical section.
type GlobalIdentity struct {
	ID     int64
	RoomID string // Empty when the owning cameras have no room configured

	// Slots maps camera id → local track id. At most one entry per camera;
	// the keys are always a subset of the owning room's cameras.
	Slots map[string]int64

	// pending holds camera slots released by track loss but kept open for
	// grace-period re-attachment after occlusion.
	pending map[string]pendingSlot

	// unconfirmed marks cameras whose slot was bound without appearance
	// evidence (spatiotemporal fallback or grace re-attachment). Such a
	// binding is provisional: the first signature that arrives for the
	// track must confirm it or the slot detaches and matches afresh.
	unconfirmed map[string]bool

	Signature   *Signature
	FirstSeen   time.Time
	LastSeen    time.Time
	Appearances int64
}

type pendingSlot struct {
	trackID    int64
	releasedAt time.Time
	expires    time.Time
}

// IdentitySnapshot is a read-only copy of an identity for API consumers.
type IdentitySnapshot struct {
	ID          int64            `json:"id"`
	RoomID      string           `json:"room_id,omitempty"`
	Cameras     map[string]int64 `json:"cameras"`
	FirstSeen   time.Time        `json:"first_seen"`
	LastSeen    time.Time        `json:"last_seen"`
	Appearances int64            `json:"appearances"`
	HasSig      bool             `json:"has_signature"`
}

// Registry is the cross-camera fusion core: it maps local tracks to global
// person identities and owns the identity lifecycle. All reads that feed a
// mutation decision and the mutation itself run as one critical section per
// Resolve call, so two cameras can never claim the same identity slot
// concurrently. A single mutex is deliberate: resolution is far from the
// throughput bottleneck (detection and embedding inference dominate cost).
type Registry struct {
	mu sync.Mutex

	cfg         Config
	cameraRooms map[string]string

	identities map[int64]*GlobalIdentity
	bySlot     map[slotKey]int64
	nextID     int64

	events EventSink
	stats  *EngineStats
	logger *log.Logger
}

// NewRegistry creates an empty registry. The event sink may be nil.
func NewRegistry(cfg Config, events EventSink, stats *EngineStats, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		cfg:         cfg,
		cameraRooms: cfg.CameraRooms(),
		identities:  make(map[int64]*GlobalIdentity),
		bySlot:      make(map[slotKey]int64),
		nextID:      1,
		events:      events,
		stats:       stats,
		logger:      logger,
	}
}

func (r *Registry) emit(ev IdentityEvent) {
	if r.events != nil {
		r.events.RecordIdentityEvent(ev)
	}
}

// Resolve maps a local track to a global identity, creating one if no
// existing identity matches above threshold. The first call for a track
// usually has no signature and falls back to spatiotemporal plausibility;
// later calls confirm or revise that provisional binding once appearance
// evidence arrives.
//
// Given identical inputs and timestamps, resolution is deterministic: exact
// score ties break by most recent last-seen, then by lowest identity id.
func (r *Registry) Resolve(track *LocalTrack, sig *Signature, now time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{cameraID: track.CameraID, trackID: track.TrackID}

	// Already mapped: confirm the mapping if needed, then refresh.
	if gid, ok := r.bySlot[key]; ok {
		if identity := r.identities[gid]; identity != nil {
			if r.confirmMapping(identity, track.CameraID, sig) {
				r.refresh(identity, sig, now)
				return gid
			}
			// Fresh appearance evidence contradicts a binding made without
			// it. Detach the slot, keep the wrong identity's signature
			// unpolluted, and fall through to a normal match.
			delete(identity.Slots, track.CameraID)
			delete(identity.unconfirmed, track.CameraID)
			delete(r.bySlot, key)
		} else {
			delete(r.bySlot, key) // Stale mapping from a mid-eviction race; remap.
		}
	}

	// Grace-period re-attachment: a track re-appearing on a camera with a
	// pending-release slot reclaims that identity without a fresh match
	// computation. This avoids identity churn from momentary occlusion.
	if identity := r.pendingForCamera(track.CameraID, now); identity != nil {
		delete(identity.pending, track.CameraID)
		r.attach(identity, track, key, sig, now)
		r.emit(newEvent(EventReattached, identity.ID, track.CameraID, identity.RoomID, now))
		if r.stats != nil {
			r.stats.AddResolution(false)
		}
		return identity.ID
	}

	camRoom := r.cameraRooms[track.CameraID]

	best, bestScore := r.scanCandidates(track.CameraID, camRoom, sig, now)
	if best != nil && bestScore >= r.cfg.SimilarityThreshold {
		r.attach(best, track, key, sig, now)
		r.emit(newEvent(EventMatched, best.ID, track.CameraID, best.RoomID, now))
		if r.stats != nil {
			r.stats.AddResolution(false)
		}
		return best.ID
	}

	// The zero-candidate path is not an error: it is the expected "new
	// person" outcome.
	identity := &GlobalIdentity{
		ID:          r.nextID,
		RoomID:      camRoom,
		Slots:       map[string]int64{track.CameraID: track.TrackID},
		pending:     make(map[string]pendingSlot),
		unconfirmed: make(map[string]bool),
		Signature:   sig.Clone(),
		FirstSeen:   now,
		LastSeen:    now,
		Appearances: 1,
	}
	if sig == nil || len(sig.Vector) == 0 {
		identity.unconfirmed[track.CameraID] = true
	}
	r.nextID++
	r.identities[identity.ID] = identity
	r.bySlot[key] = identity.ID
	r.emit(newEvent(EventCreated, identity.ID, track.CameraID, identity.RoomID, now))
	if r.stats != nil {
		r.stats.AddResolution(true)
	}
	return identity.ID
}

// scanCandidates scores every eligible identity against the track and
// returns the best one. Candidates must be recent, share the camera's room
// constraint, and not already hold a slot (active or pending) on this
// camera. Identities are visited in id order so the scan is deterministic.
func (r *Registry) scanCandidates(cameraID, camRoom string, sig *Signature, now time.Time) (*GlobalIdentity, float64) {
	var best *GlobalIdentity
	bestScore := -1.0

	for _, id := range r.sortedIdentityIDs() {
		identity := r.identities[id]

		age := now.Sub(identity.LastSeen)
		if age < 0 {
			age = 0
		}
		if age > r.cfg.CandidateWindow {
			continue
		}
		// Room constraint: an identity only spans cameras of a single room
		// (or only unroomed cameras). Cross-room merges are never valid.
		if identity.RoomID != camRoom {
			continue
		}
		// At most one local track per camera, counting held-open slots.
		if _, held := identity.Slots[cameraID]; held {
			continue
		}
		if _, held := identity.pending[cameraID]; held {
			continue
		}

		score := r.score(identity, sig, age)
		if score > bestScore ||
			(score == bestScore && best != nil && identity.LastSeen.After(best.LastSeen)) {
			best = identity
			bestScore = score
		}
	}
	return best, bestScore
}

// score computes match confidence for one candidate. With appearance
// evidence on both sides it is pure cosine similarity; otherwise a
// spatiotemporal plausibility score scaled below the fallback ceiling, so
// appearance always dominates when available. The exact fallback blend is a
// tunable approximation, not a contract.
func (r *Registry) score(identity *GlobalIdentity, sig *Signature, age time.Duration) float64 {
	if sig != nil && len(sig.Vector) > 0 && identity.Signature != nil && len(identity.Signature.Vector) > 0 {
		return CosineSimilarity(sig.Vector, identity.Signature.Vector)
	}
	recency := 1 - age.Seconds()/r.cfg.CandidateWindow.Seconds()
	if recency < 0 {
		recency = 0
	}
	return r.cfg.FallbackCeiling * recency
}

// pendingForCamera returns the identity whose pending slot on the camera is
// still within grace, preferring the most recently released slot, then the
// lowest identity id.
func (r *Registry) pendingForCamera(cameraID string, now time.Time) *GlobalIdentity {
	var found *GlobalIdentity
	var foundSlot pendingSlot
	for _, id := range r.sortedIdentityIDs() {
		identity := r.identities[id]
		slot, ok := identity.pending[cameraID]
		if !ok || now.After(slot.expires) {
			continue
		}
		if found == nil || slot.releasedAt.After(foundSlot.releasedAt) {
			found = identity
			foundSlot = slot
		}
	}
	return found
}

// confirmMapping reports whether a track's existing mapping survives the
// arrival of appearance evidence. Bindings made with appearance evidence
// always survive. A binding made without it is re-checked against the
// identity's signature the first time the track's signature shows up, and
// rejected when the cosine similarity falls below threshold.
func (r *Registry) confirmMapping(identity *GlobalIdentity, cameraID string, sig *Signature) bool {
	if !identity.unconfirmed[cameraID] {
		return true
	}
	if sig == nil || len(sig.Vector) == 0 {
		return true // Still no evidence either way; keep the binding provisional.
	}
	if identity.Signature == nil || len(identity.Signature.Vector) == 0 {
		// First appearance evidence anywhere on this identity. Adopt it.
		delete(identity.unconfirmed, cameraID)
		return true
	}
	if CosineSimilarity(sig.Vector, identity.Signature.Vector) >= r.cfg.SimilarityThreshold {
		delete(identity.unconfirmed, cameraID)
		return true
	}
	return false
}

// appearanceConfirmed reports whether the track signature and the identity
// signature agree above threshold.
func (r *Registry) appearanceConfirmed(identity *GlobalIdentity, sig *Signature) bool {
	return sig != nil && len(sig.Vector) > 0 &&
		identity.Signature != nil && len(identity.Signature.Vector) > 0 &&
		CosineSimilarity(sig.Vector, identity.Signature.Vector) >= r.cfg.SimilarityThreshold
}

// attach binds a local track to an identity and refreshes it. The binding
// stays provisional unless appearance evidence backs it.
func (r *Registry) attach(identity *GlobalIdentity, track *LocalTrack, key slotKey, sig *Signature, now time.Time) {
	identity.Slots[track.CameraID] = track.TrackID
	r.bySlot[key] = identity.ID
	if r.appearanceConfirmed(identity, sig) {
		delete(identity.unconfirmed, track.CameraID)
	} else {
		identity.unconfirmed[track.CameraID] = true
	}
	r.refresh(identity, sig, now)
}

// refresh updates last-seen, merges appearance evidence, and counts the
// appearance.
func (r *Registry) refresh(identity *GlobalIdentity, sig *Signature, now time.Time) {
	if now.After(identity.LastSeen) {
		identity.LastSeen = now
	}
	if sig != nil && len(sig.Vector) > 0 {
		if identity.Signature == nil {
			identity.Signature = sig.Clone()
		} else {
			identity.Signature.merge(sig, r.cfg.SmoothingAlpha)
		}
	}
	identity.Appearances++
}

// ReportLost marks a track's camera slot as pending release. The identity
// keeps the slot reserved for the grace period so a re-appearing track on
// the same camera re-attaches instead of minting a duplicate.
func (r *Registry) ReportLost(cameraID string, trackID int64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{cameraID: cameraID, trackID: trackID}
	gid, ok := r.bySlot[key]
	if !ok {
		return
	}
	delete(r.bySlot, key)

	identity := r.identities[gid]
	if identity == nil {
		return
	}
	if identity.Slots[cameraID] == trackID {
		delete(identity.Slots, cameraID)
		delete(identity.unconfirmed, cameraID)
		if r.cfg.GracePeriod > 0 {
			identity.pending[cameraID] = pendingSlot{
				trackID:    trackID,
				releasedAt: now,
				expires:    now.Add(r.cfg.GracePeriod),
			}
		}
	}
}

// ReleaseCamera immediately finalises every slot (active and pending)
// belonging to one camera. Called on camera worker shutdown so room counts
// never overstate occupancy for a powered-off feed.
func (r *Registry) ReleaseCamera(cameraID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range r.identities {
		if trackID, ok := identity.Slots[cameraID]; ok {
			delete(identity.Slots, cameraID)
			delete(r.bySlot, slotKey{cameraID: cameraID, trackID: trackID})
		}
		delete(identity.pending, cameraID)
		delete(identity.unconfirmed, cameraID)
	}
}

// SweepReport summarises one eviction pass.
type SweepReport struct {
	Evicted  []int64
	Released int // Pending slots whose grace period expired
	Skipped  int // Identities skipped on a consistency fault
}

// Sweep applies one atomic eviction pass: expired pending slots are
// finalised and identities past the TTL are retired. A consistency fault on
// one identity is logged and skipped, never aborting the sweep.
func (r *Registry) Sweep(now time.Time) SweepReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report SweepReport

	for _, id := range r.sortedIdentityIDs() {
		identity := r.identities[id]

		for cam, slot := range identity.pending {
			if now.After(slot.expires) {
				delete(identity.pending, cam)
				report.Released++
			}
		}

		if now.Sub(identity.LastSeen) <= r.cfg.IdentityTTL {
			continue
		}

		if err := r.checkConsistency(identity); err != nil {
			r.logger.Printf("sweep: skipping identity %d: %v", identity.ID, err)
			report.Skipped++
			continue
		}

		for cam, trackID := range identity.Slots {
			delete(r.bySlot, slotKey{cameraID: cam, trackID: trackID})
		}
		delete(r.identities, identity.ID)
		report.Evicted = append(report.Evicted, identity.ID)
		r.emit(newEvent(EventEvicted, identity.ID, "", identity.RoomID, now))
	}

	if r.stats != nil && len(report.Evicted) > 0 {
		r.stats.AddEvictions(len(report.Evicted))
	}
	return report
}

// checkConsistency verifies the identity's room reference and camera slots
// before eviction touches shared room state.
func (r *Registry) checkConsistency(identity *GlobalIdentity) error {
	if identity.RoomID == "" {
		return nil
	}
	room, ok := r.cfg.Rooms[identity.RoomID]
	if !ok {
		return &consistencyError{identity.ID, "room " + identity.RoomID + " is not configured"}
	}
	members := make(map[string]bool, len(room.Cameras))
	for _, cam := range room.Cameras {
		members[cam] = true
	}
	for cam := range identity.Slots {
		if !members[cam] {
			return &consistencyError{identity.ID, "slot camera " + cam + " outside room " + identity.RoomID}
		}
	}
	return nil
}

type consistencyError struct {
	id     int64
	reason string
}

func (e *consistencyError) Error() string { return e.reason }

// CountActive returns the number of distinct identities holding at least one
// slot on the given cameras with a last-seen inside the active window, plus
// their ids in ascending order. Runs under the registry lock, so it reflects
// every mutation committed before the call returned.
func (r *Registry) CountActive(cameras []string, now time.Time) (int, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member := make(map[string]bool, len(cameras))
	for _, cam := range cameras {
		member[cam] = true
	}

	var ids []int64
	for id, identity := range r.identities {
		if now.Sub(identity.LastSeen) > r.cfg.ActiveWindow {
			continue // Presence-stale even if not yet evicted
		}
		for cam := range identity.Slots {
			if member[cam] {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return len(ids), ids
}

// Snapshot returns read-only copies of all live identities, sorted by id.
func (r *Registry) Snapshot() []IdentitySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]IdentitySnapshot, 0, len(r.identities))
	for _, id := range r.sortedIdentityIDs() {
		identity := r.identities[id]
		cams := make(map[string]int64, len(identity.Slots))
		for cam, trackID := range identity.Slots {
			cams[cam] = trackID
		}
		out = append(out, IdentitySnapshot{
			ID:          identity.ID,
			RoomID:      identity.RoomID,
			Cameras:     cams,
			FirstSeen:   identity.FirstSeen,
			LastSeen:    identity.LastSeen,
			Appearances: identity.Appearances,
			HasSig:      identity.Signature != nil,
		})
	}
	return out
}

// Len returns the number of live identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

func (r *Registry) sortedIdentityIDs() []int64 {
	ids := make([]int64, 0, len(r.identities))
	for id := range r.identities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
