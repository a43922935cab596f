/*
scheduler.go - Scheduled runs and daily progress pruning

PURPOSE:
  Starts a run of every configured profile on a cron schedule, and drops
  progress records from earlier days once a day.

DESIGN:
  - robfig/cron with the seconds field ("0 0 8 * * *" = every day at 08:00)
  - cron.Recover keeps a panicking job from killing the scheduler
  - A scheduled run that finds a run already active is skipped, not queued
  - Pruning goes through the coordinator so it never races a run's writes

CONFIGURATION:
  - Config.Schedule: run spec, empty disables scheduled runs
  - PruneSpec: fixed at midnight

USAGE:
  s, err := NewScheduler(runner, coord, cfg, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: StartRun endpoint (manual runs)
  - runner/coordinator.go: PruneProgress
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/runner"
)

// PruneSpec runs the progress prune job at midnight.
const PruneSpec = "0 0 0 * * *"

const pruneTimeout = 25 * time.Second

// Scheduler owns the cron jobs.
type Scheduler struct {
	Runner      *runner.Runner
	Coordinator *runner.Coordinator
	Config      *config.Config
	Logger      *zap.Logger

	cron    *cron.Cron
	runJob  cron.EntryID
	hasRuns bool
}

// NewScheduler registers the jobs. It fails on an invalid run spec.
func NewScheduler(r *runner.Runner, coord *runner.Coordinator, cfg *config.Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		Runner:      r,
		Coordinator: coord,
		Config:      cfg,
		Logger:      logger,
	}
	s.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{logger})))

	if _, err := s.cron.AddFunc(PruneSpec, s.prune); err != nil {
		return nil, fmt.Errorf("scheduling progress prune: %w", err)
	}
	if cfg.Schedule != "" {
		id, err := s.cron.AddFunc(cfg.Schedule, func() {
			if _, err := s.RunNow(); err != nil && !errors.Is(err, runner.ErrRunInProgress) {
				s.Logger.Error("scheduled run failed to start", zap.Error(err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
		s.runJob = id
		s.hasRuns = true
	}
	return s, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	if s.hasRuns {
		s.Logger.Info("scheduler started", zap.String("schedule", s.Config.Schedule))
		return
	}
	s.Logger.Info("scheduler started, scheduled runs disabled")
}

// Stop waits for running jobs to return. Active runs keep going.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunNow starts a run of every configured profile.
func (s *Scheduler) RunNow() (runner.RunInfo, error) {
	info, err := s.Runner.Start(context.Background(), runner.ProfilesFrom(s.Config.Profiles))
	if errors.Is(err, runner.ErrRunInProgress) {
		s.Logger.Info("scheduled run skipped, a run is already in progress")
		return info, err
	}
	if err != nil {
		return info, err
	}
	s.Logger.Info("scheduled run started", zap.String("run_id", info.ID), zap.Int("profiles", len(info.Workers)))
	return info, nil
}

// NextRun returns when the next scheduled run fires.
func (s *Scheduler) NextRun() (time.Time, bool) {
	if !s.hasRuns {
		return time.Time{}, false
	}
	next := s.cron.Entry(s.runJob).Next
	return next, !next.IsZero()
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	removed, err := s.Coordinator.PruneProgress(ctx)
	if err != nil {
		s.Logger.Error("failed to prune progress", zap.Error(err))
		return
	}
	s.Logger.Info("progress pruned", zap.Int("removed", removed))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
