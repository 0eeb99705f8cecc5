package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for engine tuning
// parameters plus the room membership map. The schema matches the
// /api/engine/config endpoint so the same JSON can be used for startup
// configuration and for inspection at runtime. Fields omitted from the JSON
// file retain their engine defaults, so partial configs are safe.
type TuningConfig struct {
	// Identity matching params
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	FallbackCeiling     *float64 `json:"fallback_ceiling,omitempty"`
	SmoothingAlpha      *float64 `json:"smoothing_alpha,omitempty"`
	MinEmbeddingQuality *float64 `json:"min_embedding_quality,omitempty"`

	// Local track params
	LossToleranceFrames *int     `json:"loss_tolerance_frames,omitempty"`
	MinConfidence       *float64 `json:"min_confidence,omitempty"`
	MotionGatePixels    *float64 `json:"motion_gate_pixels,omitempty"`

	// Lifecycle windows (duration strings like "5s", "3m")
	IdentityTTL     *string `json:"identity_ttl,omitempty"`
	GracePeriod     *string `json:"grace_period,omitempty"`
	ActiveWindow    *string `json:"active_window,omitempty"`
	CandidateWindow *string `json:"candidate_window,omitempty"`
	SweepInterval   *string `json:"sweep_interval,omitempty"`

	// Rooms maps room id → {name, cameras, alert_threshold}.
	Rooms map[string]RoomTuning `json:"rooms,omitempty"`
}

// RoomTuning mirrors engine.RoomConfig for the JSON schema.
type RoomTuning struct {
	Name           string   `json:"name"`
	Cameras        []string `json:"cameras"`
	AlertThreshold int      `json:"alert_threshold"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file on the real
// filesystem. The file is validated to have a .json extension and stay
// under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	return LoadTuningConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTuningConfigFS is LoadTuningConfig over an injected filesystem.
func LoadTuningConfigFS(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects values that could never be correct. Room/camera
// consistency is checked again by engine.Config.Validate; this layer catches
// unparseable durations and out-of-range scalars early, while the file path
// is still in hand for error context.
func (c *TuningConfig) Validate() error {
	if c.SimilarityThreshold != nil && (*c.SimilarityThreshold <= 0 || *c.SimilarityThreshold > 1) {
		return fmt.Errorf("similarity_threshold must be in (0,1], got %v", *c.SimilarityThreshold)
	}
	if c.FallbackCeiling != nil && (*c.FallbackCeiling < 0 || *c.FallbackCeiling >= 1) {
		return fmt.Errorf("fallback_ceiling must be in [0,1), got %v", *c.FallbackCeiling)
	}
	if c.SmoothingAlpha != nil && (*c.SmoothingAlpha < 0 || *c.SmoothingAlpha >= 1) {
		return fmt.Errorf("smoothing_alpha must be in [0,1), got %v", *c.SmoothingAlpha)
	}
	if c.MinEmbeddingQuality != nil && (*c.MinEmbeddingQuality < 0 || *c.MinEmbeddingQuality > 1) {
		return fmt.Errorf("min_embedding_quality must be in [0,1], got %v", *c.MinEmbeddingQuality)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be in [0,1], got %v", *c.MinConfidence)
	}
	if c.LossToleranceFrames != nil && *c.LossToleranceFrames < 1 {
		return fmt.Errorf("loss_tolerance_frames must be >= 1, got %d", *c.LossToleranceFrames)
	}
	if c.MotionGatePixels != nil && *c.MotionGatePixels < 0 {
		return fmt.Errorf("motion_gate_pixels must be >= 0, got %v", *c.MotionGatePixels)
	}

	for field, value := range map[string]*string{
		"identity_ttl":     c.IdentityTTL,
		"grace_period":     c.GracePeriod,
		"active_window":    c.ActiveWindow,
		"candidate_window": c.CandidateWindow,
		"sweep_interval":   c.SweepInterval,
	} {
		if value == nil {
			continue
		}
		if _, err := time.ParseDuration(*value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, *value, err)
		}
	}

	for roomID, room := range c.Rooms {
		if len(room.Cameras) == 0 {
			return fmt.Errorf("room %q references no cameras", roomID)
		}
	}

	return nil
}

// EngineConfig merges the tuning values over the engine defaults.
func (c *TuningConfig) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()

	if c.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = *c.SimilarityThreshold
	}
	if c.FallbackCeiling != nil {
		cfg.FallbackCeiling = *c.FallbackCeiling
	}
	if c.SmoothingAlpha != nil {
		cfg.SmoothingAlpha = *c.SmoothingAlpha
	}
	if c.MinEmbeddingQuality != nil {
		cfg.MinEmbeddingQuality = *c.MinEmbeddingQuality
	}
	if c.LossToleranceFrames != nil {
		cfg.LossTolerance = *c.LossToleranceFrames
	}
	if c.MinConfidence != nil {
		cfg.MinConfidence = float32(*c.MinConfidence)
	}
	if c.MotionGatePixels != nil {
		cfg.MotionGatePixels = float32(*c.MotionGatePixels)
	}

	// Durations were validated by Validate; ignore errors here.
	if c.IdentityTTL != nil {
		if d, err := time.ParseDuration(*c.IdentityTTL); err == nil {
			cfg.IdentityTTL = d
		}
	}
	if c.GracePeriod != nil {
		if d, err := time.ParseDuration(*c.GracePeriod); err == nil {
			cfg.GracePeriod = d
		}
	}
	if c.ActiveWindow != nil {
		if d, err := time.ParseDuration(*c.ActiveWindow); err == nil {
			cfg.ActiveWindow = d
		}
	}
	if c.CandidateWindow != nil {
		if d, err := time.ParseDuration(*c.CandidateWindow); err == nil {
			cfg.CandidateWindow = d
		}
	}
	if c.SweepInterval != nil {
		if d, err := time.ParseDuration(*c.SweepInterval); err == nil {
			cfg.SweepInterval = d
		}
	}

	for roomID, room := range c.Rooms {
		cfg.Rooms[roomID] = engine.RoomConfig{
			Name:           room.Name,
			Cameras:        append([]string(nil), room.Cameras...),
			AlertThreshold: room.AlertThreshold,
		}
	}

	return cfg
}
