package engine

import (
	"context"
	"log"
	"time"
)

// Constants for camera worker queues
const (
	// frameQueueDepth bounds buffered frames per camera. Feeds that outrun
	// the engine lose whole frames rather than blocking other cameras.
	frameQueueDepth = 32
	// embedQueueDepth bounds buffered embedding updates per camera.
	embedQueueDepth = 64
)

type frameBatch struct {
	detections []Detection
	at         time.Time
}

type embeddingUpdate struct {
	trackID int64
	vector  []float64
	quality float64
}

// CameraWorker runs one camera feed as an independent unit of execution.
// Frames for its camera are processed strictly in arrival order; cameras
// never block each other. Embedding updates share the same loop so the
// track manager is only ever touched from one goroutine.
type CameraWorker struct {
	cameraID string
	roomID   string

	manager *TrackManager
	engine  *Engine

	frames chan frameBatch
	embeds chan embeddingUpdate

	logger *log.Logger
}

func newCameraWorker(cameraID string, e *Engine) *CameraWorker {
	return &CameraWorker{
		cameraID: cameraID,
		roomID:   e.aggregator.RoomForCamera(cameraID),
		manager:  NewTrackManager(cameraID, e.cfg, e.stats, e.logger),
		engine:   e,
		frames:   make(chan frameBatch, frameQueueDepth),
		embeds:   make(chan embeddingUpdate, embedQueueDepth),
		logger:   e.logger,
	}
}

// run drains the worker's queues until the context is cancelled. On
// shutdown it immediately releases every slot the camera holds, pending ones
// included, so room counts do not overstate occupancy for a dead feed.
func (w *CameraWorker) run(ctx context.Context) {
	defer func() {
		w.engine.registry.ReleaseCamera(w.cameraID, time.Now())
		w.engine.cache.DropCamera(w.cameraID)
		w.logger.Printf("camera %s: worker stopped, slots released", w.cameraID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-w.frames:
			w.processFrame(batch)
		case update := <-w.embeds:
			w.processEmbedding(update)
		}
	}
}

// processFrame advances the local track state one frame and feeds the
// results through the registry, then re-evaluates the camera's room.
func (w *CameraWorker) processFrame(batch frameBatch) {
	result := w.manager.Observe(batch.detections, batch.at)

	for _, track := range result.Created {
		// First resolution for a brand new track: no signature yet, so the
		// registry falls back to spatiotemporal plausibility.
		sig := w.engine.cache.Get(w.cameraID, track.TrackID)
		w.engine.registry.Resolve(track, sig, batch.at)
	}
	for _, track := range result.Updated {
		sig := w.engine.cache.Get(w.cameraID, track.TrackID)
		w.engine.registry.Resolve(track, sig, batch.at)
	}
	for _, track := range result.Lost {
		w.engine.registry.ReportLost(w.cameraID, track.TrackID, batch.at)
		w.engine.cache.Drop(w.cameraID, track.TrackID)
	}

	if len(result.Created) > 0 || len(result.Updated) > 0 || len(result.Lost) > 0 {
		w.engine.evaluate(w.roomID, batch.at)
	}
}

// processEmbedding folds one appearance embedding into the signature cache
// and refines the track's identity mapping with the fresher signature.
func (w *CameraWorker) processEmbedding(update embeddingUpdate) {
	w.engine.cache.Update(w.cameraID, update.trackID, update.vector, update.quality)

	track := w.manager.Get(update.trackID)
	if track == nil {
		// Track already lost; the signature stays cached until the grace
		// period drops it, tolerating extraction latency.
		return
	}
	sig := w.engine.cache.Get(w.cameraID, track.TrackID)
	if sig == nil {
		return
	}
	now := time.Now()
	w.engine.registry.Resolve(track, sig, now)
	w.engine.evaluate(w.roomID, now)
}

// offerFrame enqueues a frame without blocking; a full queue drops the
// frame and counts it against the camera.
func (w *CameraWorker) offerFrame(batch frameBatch) bool {
	select {
	case w.frames <- batch:
		return true
	default:
		w.logger.Printf("camera %s: frame queue full, dropping frame of %d detections",
			w.cameraID, len(batch.detections))
		return false
	}
}

func (w *CameraWorker) offerEmbedding(update embeddingUpdate) bool {
	select {
	case w.embeds <- update:
		return true
	default:
		w.logger.Printf("camera %s: embedding queue full, dropping update for track %d",
			w.cameraID, update.trackID)
		return false
	}
}
