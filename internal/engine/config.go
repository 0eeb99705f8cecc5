package engine

import (
	"fmt"
	"time"
)

// Constants for engine configuration
const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for
	// attaching a local track to an existing global identity.
	DefaultSimilarityThreshold = 0.6
	// DefaultIdentityTTL is how long an identity survives without a
	// resolution before the sweeper evicts it.
	DefaultIdentityTTL = 5 * time.Minute
	// DefaultLossTolerance is the consecutive missed frames before a local
	// track is reported lost.
	DefaultLossTolerance = 15
	// DefaultGracePeriod is how long a lost track's camera slot is held open
	// for re-attachment after occlusion.
	DefaultGracePeriod = 3 * time.Second
	// DefaultActiveWindow bounds how stale a global identity may be while
	// still counting toward room occupancy.
	DefaultActiveWindow = 10 * time.Second
	// DefaultCandidateWindow bounds how stale a global identity may be while
	// still being considered for cross-camera matching.
	DefaultCandidateWindow = 30 * time.Second
	// DefaultSweepInterval is the eviction sweeper cadence.
	DefaultSweepInterval = 5 * time.Second
	// DefaultSmoothingAlpha is the EMA weight retained by the previous
	// signature on each update.
	DefaultSmoothingAlpha = 0.9
	// DefaultMinConfidence is the detection confidence floor.
	DefaultMinConfidence = 0.4
	// DefaultFallbackCeiling caps the spatiotemporal plausibility score so
	// appearance evidence always dominates when present.
	DefaultFallbackCeiling = 0.7
	// DefaultMotionGatePixels is the maximum predicted-center distance for
	// detection-to-track association when IoU is zero.
	DefaultMotionGatePixels = 120.0
	// DefaultMinEmbeddingQuality is the quality floor below which embeddings
	// are discarded rather than merged.
	DefaultMinEmbeddingQuality = 0.2
)

// RoomConfig describes one physical room and the cameras covering it.
type RoomConfig struct {
	Name    string   `json:"name"`
	Cameras []string `json:"cameras"`
	// AlertThreshold is the occupancy at which alert intents start firing.
	// Zero disables alerting for the room.
	AlertThreshold int `json:"alert_threshold"`
}

// Config holds all tuning parameters for the occupancy engine.
type Config struct {
	// Rooms maps room id → room configuration. A camera may belong to at
	// most one room; cameras absent from every room are tracked without a
	// room constraint.
	Rooms map[string]RoomConfig

	SimilarityThreshold float64       // Cosine score floor for identity matches
	IdentityTTL         time.Duration // Eviction time-to-live
	LossTolerance       int           // Missed frames before a track is lost
	GracePeriod         time.Duration // Pending-release hold for re-attachment
	ActiveWindow        time.Duration // Presence-staleness bound for counting
	CandidateWindow     time.Duration // Staleness bound for match candidates
	SweepInterval       time.Duration // Eviction sweeper cadence
	SmoothingAlpha      float64       // EMA weight kept by the old signature
	MinConfidence       float32       // Detection confidence floor
	FallbackCeiling     float64       // Spatiotemporal score ceiling
	MotionGatePixels    float32       // Association gate when IoU is zero
	MinEmbeddingQuality float64       // Embedding quality floor
}

// DefaultConfig returns the default engine configuration with no rooms.
func DefaultConfig() Config {
	return Config{
		Rooms:               map[string]RoomConfig{},
		SimilarityThreshold: DefaultSimilarityThreshold,
		IdentityTTL:         DefaultIdentityTTL,
		LossTolerance:       DefaultLossTolerance,
		GracePeriod:         DefaultGracePeriod,
		ActiveWindow:        DefaultActiveWindow,
		CandidateWindow:     DefaultCandidateWindow,
		SweepInterval:       DefaultSweepInterval,
		SmoothingAlpha:      DefaultSmoothingAlpha,
		MinConfidence:       DefaultMinConfidence,
		FallbackCeiling:     DefaultFallbackCeiling,
		MotionGatePixels:    DefaultMotionGatePixels,
		MinEmbeddingQuality: DefaultMinEmbeddingQuality,
	}
}

// Validate checks the configuration for fatal startup errors. Data-quality
// problems at runtime are never fatal; misconfigured rooms are.
func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0,1], got %v", c.SimilarityThreshold)
	}
	if c.SmoothingAlpha < 0 || c.SmoothingAlpha >= 1 {
		return fmt.Errorf("smoothing alpha must be in [0,1), got %v", c.SmoothingAlpha)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("minimum confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.FallbackCeiling < 0 || c.FallbackCeiling >= 1 {
		return fmt.Errorf("fallback ceiling must be in [0,1), got %v", c.FallbackCeiling)
	}
	if c.IdentityTTL <= 0 {
		return fmt.Errorf("identity TTL must be positive, got %v", c.IdentityTTL)
	}
	if c.LossTolerance < 1 {
		return fmt.Errorf("loss tolerance must be >= 1, got %d", c.LossTolerance)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace period must be >= 0, got %v", c.GracePeriod)
	}
	if c.ActiveWindow <= 0 {
		return fmt.Errorf("active window must be positive, got %v", c.ActiveWindow)
	}
	if c.CandidateWindow <= 0 {
		return fmt.Errorf("candidate window must be positive, got %v", c.CandidateWindow)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}

	seen := make(map[string]string) // camera id → room id
	for roomID, room := range c.Rooms {
		if len(room.Cameras) == 0 {
			return fmt.Errorf("room %q references no cameras", roomID)
		}
		if room.AlertThreshold < 0 {
			return fmt.Errorf("room %q alert threshold must be >= 0, got %d", roomID, room.AlertThreshold)
		}
		for _, cam := range room.Cameras {
			if cam == "" {
				return fmt.Errorf("room %q contains an empty camera id", roomID)
			}
			if other, ok := seen[cam]; ok {
				return fmt.Errorf("camera %q assigned to both room %q and room %q", cam, other, roomID)
			}
			seen[cam] = roomID
		}
	}
	return nil
}

// CameraRooms builds the camera → room lookup from the room map.
func (c Config) CameraRooms() map[string]string {
	lookup := make(map[string]string)
	for roomID, room := range c.Rooms {
		for _, cam := range room.Cameras {
			lookup[cam] = roomID
		}
	}
	return lookup
}
