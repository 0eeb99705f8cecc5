package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Rooms = map[string]RoomConfig{
		"lobby": {Name: "Main Lobby", Cameras: []string{"cam-a", "cam-b"}, AlertThreshold: 1},
	}
	return cfg
}

func startTestEngine(t *testing.T, cfg Config) (*Engine, context.CancelFunc, chan error) {
	t.Helper()
	eng, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	// Workers spin up asynchronously; wait until ingest is accepted.
	require.Eventually(t, func() bool {
		return eng.IngestDetections("cam-a", nil, time.Now()) == nil
	}, time.Second, 5*time.Millisecond)

	return eng, cancel, done
}

func TestEngine_EndToEndDetectionToAlert(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	err := eng.IngestDetections("cam-a", []Detection{
		{CameraID: "cam-a", Box: BBox{X: 100, Y: 100, W: 60, H: 150}, Confidence: 0.9},
	}, time.Now())
	require.NoError(t, err)

	// The single person crosses the threshold-1 alert line.
	select {
	case intent := <-eng.AlertIntents():
		assert.Equal(t, "lobby", intent.RoomID)
		assert.Equal(t, 1, intent.Count)
		assert.Equal(t, 1, intent.Threshold)
	case <-time.After(time.Second):
		t.Fatal("expected an alert intent")
	}

	select {
	case ev := <-eng.Events():
		assert.Equal(t, EventCreated, ev.Kind)
		assert.Equal(t, int64(1), ev.GlobalID)
		assert.Equal(t, "cam-a", ev.CameraID)
	case <-time.After(time.Second):
		t.Fatal("expected an identity created event")
	}

	occ, err := eng.Occupancy("lobby")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.UniqueCount)

	// The readiness probe in startTestEngine also counts as frames, so only
	// a lower bound holds here.
	snap := eng.Stats()
	assert.GreaterOrEqual(t, snap.Frames, int64(1))
	assert.Equal(t, int64(1), snap.Minted)
}

func TestEngine_EmbeddingRefinesIdentity(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.NoError(t, eng.IngestDetections("cam-a", []Detection{
		{Box: BBox{X: 100, Y: 100, W: 60, H: 150}, Confidence: 0.9},
	}, time.Now()))

	require.Eventually(t, func() bool {
		return eng.Stats().Minted == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, eng.IngestEmbedding("cam-a", 1, []float64{1, 0, 0}, 0.9))

	require.Eventually(t, func() bool {
		return eng.Stats().Embeddings == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		ids := eng.Identities()
		return len(ids) == 1 && ids[0].HasSig
	}, time.Second, 5*time.Millisecond, "identity should carry the merged signature")
}

// crossCameraSetup drives one person through the real pipeline order: a
// cam-a frame, then their embedding, then a cam-b frame whose first
// resolution necessarily happens before any cam-b embedding exists.
func crossCameraSetup(t *testing.T, eng *Engine) {
	t.Helper()

	require.NoError(t, eng.IngestDetections("cam-a", []Detection{
		{Box: BBox{X: 100, Y: 100, W: 60, H: 150}, Confidence: 0.9},
	}, time.Now()))
	require.Eventually(t, func() bool {
		return eng.Stats().Minted == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, eng.IngestEmbedding("cam-a", 1, []float64{1, 0, 0}, 0.9))
	require.Eventually(t, func() bool {
		ids := eng.Identities()
		return len(ids) == 1 && ids[0].HasSig
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, eng.IngestDetections("cam-b", []Detection{
		{Box: BBox{X: 400, Y: 200, W: 60, H: 150}, Confidence: 0.9},
	}, time.Now()))
	require.Eventually(t, func() bool {
		ids := eng.Identities()
		if len(ids) != 1 {
			return false
		}
		_, ok := ids[0].Cameras["cam-b"]
		return ok
	}, time.Second, 5*time.Millisecond, "cam-b track should fallback-attach before its embedding arrives")
}

func TestEngine_CrossCameraSimilarEmbeddingKeepsOneIdentity(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	crossCameraSetup(t, eng)

	// The same person's embedding from cam-b confirms the attachment.
	require.NoError(t, eng.IngestEmbedding("cam-b", 1, []float64{0.99, 0.05, 0}, 0.9))
	require.Eventually(t, func() bool {
		return eng.Stats().Embeddings == 2
	}, time.Second, 5*time.Millisecond)

	ids := eng.Identities()
	require.Len(t, ids, 1)
	assert.Contains(t, ids[0].Cameras, "cam-a")
	assert.Contains(t, ids[0].Cameras, "cam-b")

	occ, err := eng.Occupancy("lobby")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.UniqueCount)
}

func TestEngine_CrossCameraDissimilarEmbeddingSplitsIdentities(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	crossCameraSetup(t, eng)

	// A different person's embedding contradicts the fallback attachment:
	// the cam-b track must split off into its own identity.
	require.NoError(t, eng.IngestEmbedding("cam-b", 1, []float64{0, 1, 0}, 0.9))
	require.Eventually(t, func() bool {
		return len(eng.Identities()) == 2
	}, time.Second, 5*time.Millisecond, "dissimilar embedding should split the wrong merge")

	occ, err := eng.Occupancy("lobby")
	require.NoError(t, err)
	assert.Equal(t, 2, occ.UniqueCount)
}

func TestEngine_UnconfiguredCameraGetsLazyWorker(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.NoError(t, eng.IngestDetections("cam-z", []Detection{
		{Box: BBox{X: 10, Y: 10, W: 60, H: 150}, Confidence: 0.9},
	}, time.Now()))

	require.Eventually(t, func() bool {
		ids := eng.Identities()
		return len(ids) == 1 && ids[0].RoomID == ""
	}, time.Second, 5*time.Millisecond, "unroomed camera should still mint identities")

	// Unroomed identities never count toward any room.
	occ, err := eng.Occupancy("lobby")
	require.NoError(t, err)
	assert.Equal(t, 0, occ.UniqueCount)
}

func TestEngine_IngestRequiresRunning(t *testing.T) {
	eng, err := New(engineTestConfig(), nil)
	require.NoError(t, err)

	err = eng.IngestDetections("cam-a", nil, time.Now())
	assert.Error(t, err)

	err = eng.IngestEmbedding("cam-a", 1, []float64{1}, 0.9)
	assert.Error(t, err)
}

func TestEngine_IngestRequiresCameraID(t *testing.T) {
	eng, err := New(engineTestConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, eng.IngestDetections("", nil, time.Now()))
	assert.Error(t, eng.IngestEmbedding("", 1, []float64{1}, 0.9))
}

func TestEngine_ShutdownRejectsLateIngest(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())

	cancel()

	// Ingest must start failing as soon as shutdown begins, not only after
	// Run returns, so no late worker can publish into a closing channel.
	require.Eventually(t, func() bool {
		return eng.IngestDetections("cam-a", nil, time.Now()) != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, <-done)
	assert.Error(t, eng.IngestDetections("cam-a", nil, time.Now()))
	assert.Error(t, eng.IngestEmbedding("cam-a", 1, []float64{1}, 0.9))
}

func TestEngine_ChannelsCloseOnShutdown(t *testing.T) {
	eng, cancel, done := startTestEngine(t, engineTestConfig())

	cancel()
	require.NoError(t, <-done)

	_, intentsOpen := <-eng.AlertIntents()
	assert.False(t, intentsOpen)
	_, eventsOpen := <-eng.Events()
	assert.False(t, eventsOpen)
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rooms = map[string]RoomConfig{"lobby": {}} // no cameras
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
