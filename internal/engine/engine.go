package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Constants for engine output queues
const (
	intentQueueDepth = 64
	eventQueueDepth  = 256

	// statsLogInterval is how often the engine logs and resets its
	// throughput counters while running.
	statsLogInterval = time.Minute
)

// Engine wires the occupancy core together: one track manager per camera
// feed, the shared signature cache and identity registry, the room
// aggregator, the alert state machines, and the eviction sweeper.
//
// The engine itself performs no blocking I/O. It consumes already-computed
// detections and embeddings and emits alert intents and identity events on
// buffered channels for external collaborators to deliver or persist.
type Engine struct {
	cfg    Config
	logger *log.Logger

	stats      *EngineStats
	cache      *SignatureCache
	registry   *Registry
	aggregator *RoomAggregator
	alerts     *AlertMonitor
	sweeper    *EvictionSweeper

	mu      sync.Mutex
	workers map[string]*CameraWorker
	ctx     context.Context
	wg      sync.WaitGroup

	intents chan AlertIntent
	events  chan IdentityEvent
}

// New validates the configuration and builds an engine. Configuration
// errors (a room with no cameras, a camera in two rooms) are fatal here;
// data-quality errors at runtime never are.
func New(cfg Config, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		stats:   NewEngineStats(),
		workers: make(map[string]*CameraWorker),
		intents: make(chan AlertIntent, intentQueueDepth),
		events:  make(chan IdentityEvent, eventQueueDepth),
	}

	e.cache = NewSignatureCache(cfg.SmoothingAlpha, cfg.MinEmbeddingQuality, e.stats)
	e.registry = NewRegistry(cfg, EventSinkFunc(e.publishEvent), e.stats, logger)
	e.aggregator = NewRoomAggregator(e.registry, cfg.Rooms)
	e.alerts = NewAlertMonitor(cfg.Rooms)
	e.sweeper = NewEvictionSweeper(EvictionSweeperConfig{
		Registry: e.registry,
		Interval: cfg.SweepInterval,
		OnSweep:  e.afterSweep,
		Logger:   logger,
	})

	return e, nil
}

// Run starts the camera workers for every configured camera plus the
// eviction sweeper, and blocks until the context is cancelled and all
// workers have drained.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.ctx != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.ctx = ctx
	for _, room := range e.cfg.Rooms {
		for _, cam := range room.Cameras {
			e.startWorkerLocked(cam)
		}
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sweeper.Run(ctx); err != nil {
			e.logger.Printf("sweeper exited with error: %v", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(statsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.stats.LogStats()
			}
		}
	}()

	<-ctx.Done()

	// New ingest must be refused before waiting on the workers: a worker
	// spawned mid-wait could outlive the Wait and publish into a closed
	// channel.
	e.mu.Lock()
	e.ctx = nil
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.workers = make(map[string]*CameraWorker)
	e.mu.Unlock()

	close(e.intents)
	close(e.events)
	return nil
}

// startWorkerLocked spawns a camera worker. Caller holds e.mu and must have
// set e.ctx.
func (e *Engine) startWorkerLocked(cameraID string) *CameraWorker {
	if w, ok := e.workers[cameraID]; ok {
		return w
	}
	w := newCameraWorker(cameraID, e)
	e.workers[cameraID] = w
	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.run(ctx)
	}()
	e.logger.Printf("camera %s: worker started (room=%q)", cameraID, w.roomID)
	return w
}

// worker returns the worker for a camera, creating one on first use for
// cameras outside any configured room.
func (e *Engine) worker(cameraID string) (*CameraWorker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil, fmt.Errorf("engine is not running")
	}
	return e.startWorkerLocked(cameraID), nil
}

// IngestDetections feeds one frame of detections from a camera into its
// worker queue. The call never blocks: a backed-up camera drops frames
// rather than stalling other feeds.
func (e *Engine) IngestDetections(cameraID string, detections []Detection, at time.Time) error {
	if cameraID == "" {
		return fmt.Errorf("camera id is required")
	}
	w, err := e.worker(cameraID)
	if err != nil {
		return err
	}
	w.offerFrame(frameBatch{detections: detections, at: at})
	return nil
}

// IngestEmbedding feeds one appearance embedding for a local track. The
// extraction collaborator runs at a lower cadence than frame rate; stale
// deliveries for already-lost tracks are tolerated silently.
func (e *Engine) IngestEmbedding(cameraID string, trackID int64, vector []float64, quality float64) error {
	if cameraID == "" {
		return fmt.Errorf("camera id is required")
	}
	w, err := e.worker(cameraID)
	if err != nil {
		return err
	}
	w.offerEmbedding(embeddingUpdate{trackID: trackID, vector: vector, quality: quality})
	return nil
}

// evaluate recomputes one room's occupancy and runs it through the alert
// state machine.
func (e *Engine) evaluate(roomID string, now time.Time) {
	if roomID == "" {
		return
	}
	occ, err := e.aggregator.Count(roomID, now)
	if err != nil {
		return
	}
	if intent := e.alerts.Observe(roomID, occ.UniqueCount, now); intent != nil {
		e.publishIntent(*intent)
	}
}

// afterSweep re-evaluates every room after an eviction pass so counts drop
// promptly and alert state machines re-arm.
func (e *Engine) afterSweep(report SweepReport) {
	now := time.Now()
	for _, roomID := range e.aggregator.Rooms() {
		e.evaluate(roomID, now)
	}
}

func (e *Engine) publishIntent(intent AlertIntent) {
	select {
	case e.intents <- intent:
	default:
		e.logger.Printf("alert intent queue full, dropping intent for room %s (count=%d)",
			intent.RoomID, intent.Count)
	}
}

func (e *Engine) publishEvent(ev IdentityEvent) {
	select {
	case e.events <- ev:
	default:
		e.logger.Printf("identity event queue full, dropping %s event for identity %d",
			ev.Kind, ev.GlobalID)
	}
}

// AlertIntents exposes the emitted alert intents. The channel closes when
// Run returns.
func (e *Engine) AlertIntents() <-chan AlertIntent { return e.intents }

// Events exposes identity lifecycle events for audit collaborators. The
// channel closes when Run returns.
func (e *Engine) Events() <-chan IdentityEvent { return e.events }

// Occupancy returns the current deduplicated count for one room.
func (e *Engine) Occupancy(roomID string) (RoomOccupancy, error) {
	return e.aggregator.Count(roomID, time.Now())
}

// Snapshot returns the occupancy of every configured room.
func (e *Engine) Snapshot() []RoomOccupancy {
	return e.aggregator.Snapshot(time.Now())
}

// Identities returns read-only copies of the live global identities.
func (e *Engine) Identities() []IdentitySnapshot {
	return e.registry.Snapshot()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// AlertThreshold returns the configured alert threshold for a room.
func (e *Engine) AlertThreshold(roomID string) int {
	return e.alerts.Threshold(roomID)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }
