package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate_Defaults(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero similarity threshold", func(c *Config) { c.SimilarityThreshold = 0 }},
		{"similarity above one", func(c *Config) { c.SimilarityThreshold = 1.1 }},
		{"alpha of one", func(c *Config) { c.SmoothingAlpha = 1 }},
		{"negative TTL", func(c *Config) { c.IdentityTTL = -time.Second }},
		{"zero loss tolerance", func(c *Config) { c.LossTolerance = 0 }},
		{"negative grace", func(c *Config) { c.GracePeriod = -time.Second }},
		{"zero active window", func(c *Config) { c.ActiveWindow = 0 }},
		{"zero candidate window", func(c *Config) { c.CandidateWindow = 0 }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"fallback ceiling of one", func(c *Config) { c.FallbackCeiling = 1 }},
		{"room without cameras", func(c *Config) {
			c.Rooms = map[string]RoomConfig{"lobby": {Name: "Lobby"}}
		}},
		{"negative alert threshold", func(c *Config) {
			c.Rooms = map[string]RoomConfig{"lobby": {Cameras: []string{"cam-a"}, AlertThreshold: -1}}
		}},
		{"empty camera id", func(c *Config) {
			c.Rooms = map[string]RoomConfig{"lobby": {Cameras: []string{""}}}
		}},
		{"camera in two rooms", func(c *Config) {
			c.Rooms = map[string]RoomConfig{
				"lobby":  {Cameras: []string{"cam-a"}},
				"atrium": {Cameras: []string{"cam-a"}},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigCameraRooms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rooms = map[string]RoomConfig{
		"lobby":  {Cameras: []string{"cam-a", "cam-b"}},
		"atrium": {Cameras: []string{"cam-c"}},
	}
	want := map[string]string{
		"cam-a": "lobby",
		"cam-b": "lobby",
		"cam-c": "atrium",
	}
	if diff := cmp.Diff(want, cfg.CameraRooms()); diff != "" {
		t.Errorf("CameraRooms mismatch (-want +got):\n%s", diff)
	}
}
