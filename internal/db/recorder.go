package db

import (
	"context"
	"log"
	"time"

	"github.com/banshee-data/occupancy.report/internal/engine"
)

// OccupancySource provides the current per-room occupancy. The engine
// implements this interface.
type OccupancySource interface {
	Snapshot() []engine.RoomOccupancy
}

// Recorder periodically samples room occupancy into the database. It runs
// as its own goroutine so a slow disk never backpressures the engine.
type Recorder struct {
	db       *DB
	source   OccupancySource
	interval time.Duration
	logger   *log.Logger
}

// NewRecorder creates a recorder sampling at the given interval. A nil
// logger uses log.Default().
func NewRecorder(db *DB, source OccupancySource, interval time.Duration, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		db:       db,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Run samples until the context is cancelled, writing one final sample on
// the way out. Returns nil on clean shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Printf("Recorder: interval is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Printf("Recorder started: interval=%v", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.sample()
			r.logger.Printf("Recorder stopping due to context cancellation")
			return nil
		case <-ticker.C:
			r.sample()
		}
	}
}

// sample records one occupancy reading per room. A failure on one room is
// logged and does not block the others.
func (r *Recorder) sample() {
	for _, occ := range r.source.Snapshot() {
		if err := r.db.RecordOccupancy(occ); err != nil {
			r.logger.Printf("Recorder: error recording room %s: %v", occ.RoomID, err)
		}
	}
}
