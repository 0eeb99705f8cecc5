package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/occupancy.report/internal/timeutil"
)

// Sweepable is the surface the sweeper needs from the registry.
// Registry implements this interface.
type Sweepable interface {
	Sweep(now time.Time) SweepReport
}

// EvictionSweeper periodically retires stale global identities and finalises
// expired pending-release slots. Each pass runs as a single atomic operation
// under the registry lock, so eviction and resolution never interleave.
type EvictionSweeper struct {
	registry Sweepable
	interval time.Duration
	onSweep  func(report SweepReport) // Optional post-pass hook
	logger   *log.Logger
	clock    timeutil.Clock
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// EvictionSweeperConfig contains configuration for EvictionSweeper.
type EvictionSweeperConfig struct {
	// Registry is the Sweepable to sweep (typically the identity Registry)
	Registry Sweepable
	// Interval is how often to sweep (e.g., 5*time.Second)
	Interval time.Duration
	// OnSweep is an optional callback invoked after every pass, outside the
	// registry lock. The engine uses it to refresh room counts and alerts.
	OnSweep func(report SweepReport)
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
	// Clock is optional; if nil, uses the real clock. Tests inject a
	// MockClock to drive sweeps deterministically.
	Clock timeutil.Clock
}

// NewEvictionSweeper creates a new EvictionSweeper.
func NewEvictionSweeper(cfg EvictionSweeperConfig) *EvictionSweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &EvictionSweeper{
		registry: cfg.Registry,
		interval: cfg.Interval,
		onSweep:  cfg.OnSweep,
		logger:   logger,
		clock:    clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the periodic sweep loop. It blocks until the context is
// cancelled or Stop() is called. Returns nil on clean shutdown.
func (s *EvictionSweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		close(s.doneCh)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.interval <= 0 {
		s.logger.Printf("EvictionSweeper: interval is zero or negative, not starting")
		return nil
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Printf("EvictionSweeper started: interval=%v", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("EvictionSweeper stopping due to context cancellation")
			return nil
		case <-s.stopCh:
			s.logger.Printf("EvictionSweeper stopping due to Stop() call")
			return nil
		case <-ticker.C():
			s.sweep()
		}
	}
}

// Stop requests the sweeper to stop. It is safe to call multiple times.
func (s *EvictionSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopCh:
		// already closed
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	// Wait for completion
	<-s.doneCh
}

// IsRunning returns whether the sweeper is currently running.
func (s *EvictionSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// sweep performs a single eviction pass.
func (s *EvictionSweeper) sweep() {
	if s.registry == nil {
		return
	}
	report := s.registry.Sweep(s.clock.Now())
	if len(report.Evicted) > 0 || report.Released > 0 || report.Skipped > 0 {
		s.logger.Printf("EvictionSweeper: evicted=%d released=%d skipped=%d",
			len(report.Evicted), report.Released, report.Skipped)
	}
	if s.onSweep != nil {
		s.onSweep(report)
	}
}

// SweepNow triggers an immediate pass outside the regular interval.
func (s *EvictionSweeper) SweepNow() {
	s.sweep()
}
