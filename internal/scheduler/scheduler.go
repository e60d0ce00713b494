// Package scheduler reruns the export on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cyp0633/caldav2rem/internal/logging"
)

// Job is one regeneration run
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. Runs never overlap; a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger *slog.Logger
}

// Parse validates a standard five-field cron expression or descriptor
// such as "@daily"
func Parse(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// New creates a scheduler in the given location
func New(spec string, loc *time.Location, job Job, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Discard()
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, spec: spec, job: job, logger: logger}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running job to finish
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		start := time.Now()
		if err := s.job(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("add schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next", s.cron.Entry(id).Next)

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}
