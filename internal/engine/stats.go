package engine

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// EngineStats tracks ingest and resolution statistics with thread-safe
// operations. Malformed and low-confidence detections are counted here
// rather than surfaced to callers.
type EngineStats struct {
	mu              sync.Mutex
	frameCount      int64
	detectionCount  int64
	malformedCount  int64
	lowConfCount    int64
	embeddingCount  int64
	embeddingDrops  int64
	resolutionCount int64
	mintCount       int64
	attachCount     int64
	evictionCount   int64
	lastReset       time.Time
}

// NewEngineStats creates a new EngineStats instance.
func NewEngineStats() *EngineStats {
	return &EngineStats{
		lastReset: time.Now(),
	}
}

// AddFrame increments frame and detection counts.
func (es *EngineStats) AddFrame(detections int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.frameCount++
	es.detectionCount += int64(detections)
}

// AddMalformed increments the malformed detection count.
func (es *EngineStats) AddMalformed() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.malformedCount++
}

// AddLowConfidence increments the below-floor confidence count.
func (es *EngineStats) AddLowConfidence() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.lowConfCount++
}

// AddEmbedding increments the accepted embedding count.
func (es *EngineStats) AddEmbedding() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.embeddingCount++
}

// AddEmbeddingDropped increments the quality-gated embedding drop count.
func (es *EngineStats) AddEmbeddingDropped() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.embeddingDrops++
}

// AddResolution counts one registry resolution, recording whether it minted
// a new identity or attached to an existing one.
func (es *EngineStats) AddResolution(minted bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.resolutionCount++
	if minted {
		es.mintCount++
	} else {
		es.attachCount++
	}
}

// AddEvictions adds to the evicted identity count.
func (es *EngineStats) AddEvictions(n int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.evictionCount += int64(n)
}

// StatsSnapshot is a point-in-time copy of the counters for the API.
type StatsSnapshot struct {
	Frames          int64 `json:"frames"`
	Detections      int64 `json:"detections"`
	Malformed       int64 `json:"malformed"`
	LowConfidence   int64 `json:"low_confidence"`
	Embeddings      int64 `json:"embeddings"`
	EmbeddingsDrops int64 `json:"embeddings_dropped"`
	Resolutions     int64 `json:"resolutions"`
	Minted          int64 `json:"identities_minted"`
	Attached        int64 `json:"identities_attached"`
	Evicted         int64 `json:"identities_evicted"`
}

// Snapshot returns current counter values without resetting them.
func (es *EngineStats) Snapshot() StatsSnapshot {
	es.mu.Lock()
	defer es.mu.Unlock()
	return StatsSnapshot{
		Frames:          es.frameCount,
		Detections:      es.detectionCount,
		Malformed:       es.malformedCount,
		LowConfidence:   es.lowConfCount,
		Embeddings:      es.embeddingCount,
		EmbeddingsDrops: es.embeddingDrops,
		Resolutions:     es.resolutionCount,
		Minted:          es.mintCount,
		Attached:        es.attachCount,
		Evicted:         es.evictionCount,
	}
}

// GetAndReset returns current stats and resets counters.
func (es *EngineStats) GetAndReset() (snap StatsSnapshot, duration time.Duration) {
	es.mu.Lock()
	defer es.mu.Unlock()

	now := time.Now()
	duration = now.Sub(es.lastReset)
	snap = StatsSnapshot{
		Frames:          es.frameCount,
		Detections:      es.detectionCount,
		Malformed:       es.malformedCount,
		LowConfidence:   es.lowConfCount,
		Embeddings:      es.embeddingCount,
		EmbeddingsDrops: es.embeddingDrops,
		Resolutions:     es.resolutionCount,
		Minted:          es.mintCount,
		Attached:        es.attachCount,
		Evicted:         es.evictionCount,
	}

	es.frameCount = 0
	es.detectionCount = 0
	es.malformedCount = 0
	es.lowConfCount = 0
	es.embeddingCount = 0
	es.embeddingDrops = 0
	es.resolutionCount = 0
	es.mintCount = 0
	es.attachCount = 0
	es.evictionCount = 0
	es.lastReset = now
	return snap, duration
}

// LogStats logs current statistics and resets counters.
func (es *EngineStats) LogStats() {
	snap, duration := es.GetAndReset()
	if snap.Frames == 0 && snap.Resolutions == 0 {
		return
	}
	rate := float64(snap.Frames) / duration.Seconds()
	log.Printf("engine stats: %s over %v (%.1f frames/s)", snap, duration.Round(time.Second), rate)
}

// String renders the snapshot for log output.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("frames=%d detections=%d malformed=%d low_conf=%d embeddings=%d/%d resolutions=%d minted=%d attached=%d evicted=%d",
		s.Frames, s.Detections, s.Malformed, s.LowConfidence,
		s.Embeddings, s.Embeddings+s.EmbeddingsDrops,
		s.Resolutions, s.Minted, s.Attached, s.Evicted)
}
