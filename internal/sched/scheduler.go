// Package sched runs the periodic data-refresh jobs: team records daily,
// game schedules hourly, odds every fifteen minutes. Each job fans out over
// the configured sports through the orchestrator, which handles quotas,
// rotation, and fallback.
package sched

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apexsports/feedgate"
)

const (
	defaultTeamsInterval    = 24 * time.Hour
	defaultScheduleInterval = time.Hour
	defaultOddsInterval     = 15 * time.Minute
)

// DataFetcher is the slice of the orchestrator the scheduler needs.
type DataFetcher interface {
	FetchOrDefault(ctx context.Context, dataType feedgate.DataType, sport string) *feedgate.Payload
}

// Config controls the refresh cadence.
type Config struct {
	Enabled          bool
	TeamsInterval    time.Duration
	ScheduleInterval time.Duration
	OddsInterval     time.Duration
	Sports           []string
}

// Scheduler drives the periodic refresh jobs until its context is canceled.
type Scheduler struct {
	cfg     Config
	fetcher DataFetcher
	logger  *slog.Logger
	started atomic.Bool
}

// New creates a scheduler.
func New(cfg Config, fetcher DataFetcher, logger *slog.Logger) *Scheduler {
	if cfg.TeamsInterval <= 0 {
		cfg.TeamsInterval = defaultTeamsInterval
	}
	if cfg.ScheduleInterval <= 0 {
		cfg.ScheduleInterval = defaultScheduleInterval
	}
	if cfg.OddsInterval <= 0 {
		cfg.OddsInterval = defaultOddsInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Start begins the refresh loops. Each job runs once immediately, then on
// its interval. Start is a no-op when the scheduler is disabled or already
// running.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || !s.cfg.Enabled || s.fetcher == nil {
		return
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	go s.loop(ctx, "teams", s.cfg.TeamsInterval, feedgate.DataTypeTeams)
	go s.loop(ctx, "schedule", s.cfg.ScheduleInterval, feedgate.DataTypeGames)
	go s.loop(ctx, "odds", s.cfg.OddsInterval, feedgate.DataTypeOdds)
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, dataType feedgate.DataType) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runJob(ctx, name, dataType)

	for {
		select {
		case <-ticker.C:
			s.runJob(ctx, name, dataType)
		case <-ctx.Done():
			s.logger.Info("refresh job stopped", "job", name)
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, dataType feedgate.DataType) {
	start := time.Now()
	for _, sport := range s.cfg.Sports {
		if ctx.Err() != nil {
			return
		}
		payload := s.fetcher.FetchOrDefault(ctx, dataType, sport)
		s.logger.Info("refresh job completed",
			"job", name,
			"sport", sport,
			"games", len(payload.Games),
			"odds", len(payload.Odds),
			"teams", len(payload.Teams),
			"elapsed", time.Since(start),
		)
	}
}
