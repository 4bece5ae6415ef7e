package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic jobs on a robfig/cron instance.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler() *Scheduler {
	logger := slog.Default().With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		logger: logger,
	}
}

// Every registers a refresh of r at the given interval.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, r *Refresher) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	return s.Add(ctx, fmt.Sprintf("@every %s", interval), "refresh", func(ctx context.Context) {
		_ = r.Refresh(ctx, TriggerSchedule)
	})
}

// Add registers fn under a cron spec such as "@every 15m" or "0 3 * * *".
func (s *Scheduler) Add(ctx context.Context, spec, name string, fn func(ctx context.Context)) error {
	if _, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
	}
	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
