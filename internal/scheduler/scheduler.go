// Package scheduler runs the periodic score recompute on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZanzyTHEbar/cinecritic/internal/monitoring"
)

// Job is one scheduled run; its context is cancelled on Stop
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with a single job
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	spec     string
	location *time.Location
	logger   *monitoring.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	entryID cron.EntryID

	runs     atomic.Int64
	failures atomic.Int64
}

// New validates spec (five-field cron or a descriptor such as "@every 15m")
// and registers job. Overlapping runs are skipped and panics are recovered.
func New(spec string, location *time.Location, job Job, logger *monitoring.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler job is nil")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = monitoring.NewLogger(slog.LevelInfo)
	}

	cronLogger := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     c,
		job:      job,
		spec:     spec,
		location: location,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	entryID, err := c.AddFunc(spec, func() {
		_ = s.run(s.ctx, "cron")
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = entryID

	return s, nil
}

// Start begins the schedule; calling it twice is a no-op
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started", "spec", s.spec, "timezone", s.location.String(), "next_run", s.NextRun())
}

// Stop halts the schedule and waits for a running job until ctx is done,
// at which point the job's context is cancelled
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.started = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Scheduler stop timed out, cancelled running job")
		return ctx.Err()
	}
}

// RunNow runs the job immediately in the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx, "manual")
}

func (s *Scheduler) run(ctx context.Context, trigger string) error {
	start := time.Now()
	s.runs.Add(1)

	err := s.job(ctx)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("Scheduled job failed",
			"trigger", trigger,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return err
	}

	s.logger.Debug("Scheduled job completed",
		"trigger", trigger,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// NextRun returns the next scheduled time, zero before Start
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stats returns run counters
func (s *Scheduler) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"spec":     s.spec,
		"timezone": s.location.String(),
		"runs":     s.runs.Load(),
		"failures": s.failures.Load(),
	}
	if next := s.NextRun(); !next.IsZero() {
		stats["next_run"] = next.Format(time.RFC3339)
	}
	return stats
}

// cronLogger routes cron's internal logging to slog
type cronLogger struct {
	logger *monitoring.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
