// Package worker fires the time-driven jobs: the daily bonus draw and the
// season rollover.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/service"
)

// Jobs is the part of the engine the scheduler drives
type Jobs interface {
	RegenerateBonuses(ctx context.Context) ([]domain.BonusAssignment, error)
	Rollover(ctx context.Context) (domain.RolloverReport, error)
	RestoreBonuses(ctx context.Context) (int, error)
	RestoreManualResets(ctx context.Context) (int, error)
}

// Scheduler polls the season clock and runs each job once per boundary
type Scheduler struct {
	jobs    Jobs
	clock   *service.SeasonClock
	config  *config.SchedulerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool

	// guarded by tickMu
	tickMu     sync.Mutex
	lastDay    string
	lastSeason string
}

// NewScheduler creates a new scheduler
func NewScheduler(jobs Jobs, clock *service.SeasonClock, cfg *config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		clock:  clock,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start restores cached state, makes sure today's bonus pairs exist and
// begins ticking
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.bootstrap(ctx)

	s.logger.Info("scheduler started", "interval", s.config.Interval)
	go s.run(ctx)
	return nil
}

// Stop stops the background loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// bootstrap runs once before the first tick. Cache failures only cost the
// restored state, so they are logged and startup continues.
func (s *Scheduler) bootstrap(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	s.lastSeason = s.clock.SeasonID(now)
	s.lastDay = s.clock.Day(now)

	if n, err := s.jobs.RestoreManualResets(ctx); err != nil {
		s.logger.Warn("failed to restore manual resets", "error", err)
	} else if n > 0 {
		s.logger.Info("restored manual resets", "count", n)
	}

	n, err := s.jobs.RestoreBonuses(ctx)
	if err != nil {
		s.logger.Warn("failed to restore bonus pairs", "error", err)
	}
	if n > 0 {
		s.logger.Info("restored bonus pairs", "count", n, "day", s.lastDay)
		return
	}
	if _, err := s.jobs.RegenerateBonuses(ctx); err != nil {
		s.logger.Error("failed to draw bonus pairs", "error", err)
	}
}

// run is the main loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires the rollover on a season change, then the bonus draw on a day
// change. A failed job keeps its marker so the next tick retries it.
func (s *Scheduler) tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	season := s.clock.SeasonID(now)
	day := s.clock.Day(now)

	if season != s.lastSeason {
		report, err := s.jobs.Rollover(ctx)
		if err != nil {
			s.logger.Error("season rollover failed", "season_id", season, "error", err)
		} else {
			s.lastSeason = season
			s.logger.Info("season rolled over",
				"closed_season_id", report.ClosedSeasonID,
				"new_season_id", report.NewSeasonID,
				"scopes", len(report.Scopes),
			)
		}
	}

	if day != s.lastDay {
		drawn, err := s.jobs.RegenerateBonuses(ctx)
		if err != nil {
			s.logger.Error("bonus draw failed", "day", day, "error", err)
			return
		}
		s.lastDay = day
		s.logger.Info("daily bonus drawn", "day", day, "scopes", len(drawn))
	}
}

// RunOnce runs a single tick (useful for manual triggers and tests)
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx)
}
