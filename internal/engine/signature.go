package engine

import (
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Signature is a smoothed appearance feature vector for one tracked person.
// Vectors arrive from the external embedding extractor at a lower cadence
// than frame rate and are blended with an exponential moving average.
type Signature struct {
	Vector  []float64
	Quality float64
	Updates int
}

// Clone returns a deep copy of the signature.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	out := &Signature{
		Vector:  make([]float64, len(s.Vector)),
		Quality: s.Quality,
		Updates: s.Updates,
	}
	copy(out.Vector, s.Vector)
	return out
}

// CosineSimilarity computes the cosine of the angle between two feature
// vectors. Returns 0 for mismatched lengths or zero-norm vectors so that
// degenerate embeddings never score above threshold.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// blend applies the EMA update rule in place:
//
//	signature = α·signature_old + (1-α)·signature_new
//
// Low-quality embeddings are down-weighted by scaling the new-sample weight
// with the reported quality, so a quality-0.5 embedding moves the signature
// half as far as a quality-1.0 one.
func (s *Signature) blend(vector []float64, quality, alpha float64) {
	if len(s.Vector) != len(vector) {
		// Dimension change means a different embedding model; restart.
		s.Vector = make([]float64, len(vector))
		copy(s.Vector, vector)
		s.Quality = quality
		s.Updates = 1
		return
	}

	w := (1 - alpha) * quality
	floats.Scale(1-w, s.Vector)
	floats.AddScaled(s.Vector, w, vector)

	// Quality tracks the same EMA so stale high scores decay.
	s.Quality = (1-w)*s.Quality + w*quality
	s.Updates++
}

// merge folds another signature into this one, weighting by the incoming
// signature's quality. Used when a local track attaches to an existing
// global identity.
func (s *Signature) merge(other *Signature, alpha float64) {
	if other == nil || len(other.Vector) == 0 {
		return
	}
	s.blend(other.Vector, other.Quality, alpha)
}

type slotKey struct {
	cameraID string
	trackID  int64
}

// SignatureCache holds the smoothed appearance signature for each live local
// track, keyed by (camera, local track id). The track manager owns track
// lifetimes; the cache simply drops entries when told a track is gone.
type SignatureCache struct {
	mu         sync.Mutex
	signatures map[slotKey]*Signature
	alpha      float64
	minQuality float64
	stats      *EngineStats
}

// NewSignatureCache creates a cache with the given EMA smoothing factor and
// embedding quality floor.
func NewSignatureCache(alpha, minQuality float64, stats *EngineStats) *SignatureCache {
	return &SignatureCache{
		signatures: make(map[slotKey]*Signature),
		alpha:      alpha,
		minQuality: minQuality,
		stats:      stats,
	}
}

// Update applies one embedding to a track's signature. Embeddings below the
// quality floor are discarded and counted, never merged.
func (c *SignatureCache) Update(cameraID string, trackID int64, vector []float64, quality float64) {
	if len(vector) == 0 || quality < c.minQuality || quality > 1 {
		if c.stats != nil {
			c.stats.AddEmbeddingDropped()
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := slotKey{cameraID: cameraID, trackID: trackID}
	sig, ok := c.signatures[key]
	if !ok {
		sig = &Signature{
			Vector:  make([]float64, len(vector)),
			Quality: quality,
			Updates: 1,
		}
		copy(sig.Vector, vector)
		c.signatures[key] = sig
	} else {
		sig.blend(vector, quality, c.alpha)
	}

	if c.stats != nil {
		c.stats.AddEmbedding()
	}
}

// Get returns a copy of the signature for a track, or nil if none has been
// computed yet. Callers receive a copy so registry merges never race with
// cache updates.
func (c *SignatureCache) Get(cameraID string, trackID int64) *Signature {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signatures[slotKey{cameraID: cameraID, trackID: trackID}].Clone()
}

// Drop removes a track's signature once the track manager finalises its loss.
func (c *SignatureCache) Drop(cameraID string, trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.signatures, slotKey{cameraID: cameraID, trackID: trackID})
}

// DropCamera removes every signature belonging to one camera. Called when a
// camera worker shuts down.
func (c *SignatureCache) DropCamera(cameraID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.signatures {
		if key.cameraID == cameraID {
			delete(c.signatures, key)
		}
	}
}

// Len returns the number of cached signatures.
func (c *SignatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signatures)
}
