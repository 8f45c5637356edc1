package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/folio/internal/events"
)

// Scheduler drives the periodic housekeeping pass: expiring sessions and
// pruning the operation journal.
type Scheduler struct {
	interval  time.Duration
	retention time.Duration
	sessions  SessionSweeper
	journal   JournalPruner
	events    *events.Hub
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Config holds scheduler timing.
type Config struct {
	Interval         time.Duration
	JournalRetention time.Duration
}

// New creates a Scheduler. journal may be nil when the journal is disabled.
func New(cfg Config, sessions SessionSweeper, journal JournalPruner, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		interval:  cfg.Interval,
		retention: cfg.JournalRetention,
		sessions:  sessions,
		journal:   journal,
		events:    hub,
		logger:    logger.With("component", "scheduler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "interval", s.interval)
	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop gracefully stops the scheduler and waits for an in-progress tick.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial tick immediately
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Warn("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick performs a single housekeeping pass.
func (s *Scheduler) tick(ctx context.Context) {
	s.logger.Debug("Scheduler tick")
	s.events.Publish("scheduler.tick", map[string]any{
		"at": time.Now().UTC(),
	})

	if expired := s.sessions.Sweep(ctx); expired > 0 {
		s.logger.Info("Expired sessions reaped", "count", expired)
	}

	if s.journal == nil || s.retention <= 0 {
		return
	}
	pruned, err := s.journal.Prune(ctx, s.retention)
	if err != nil {
		s.logger.Error("Failed to prune operation journal", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Debug("Pruned operation journal", "rows", pruned)
	}
}
