// Package scheduler triggers runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

// Skippable reports errors that mean "not this time" rather than failure.
type Skippable func(err error) bool

type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	job     Job
	skip    Skippable
	logger  *slog.Logger
	ctx     context.Context
}

// New parses spec (standard five-field cron or descriptors like "@every 1h").
// Overlapping ticks are skipped while a job is still running.
func New(spec string, job Job, skip Skippable, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		spec:   spec,
		job:    job,
		skip:   skip,
		logger: logger,
		ctx:    context.Background(),
	}
	id, err := s.cron.AddFunc(spec, s.runJob)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins ticking. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next_run", s.NextRun())
}

// Stop halts the schedule and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// NextRun is zero until the scheduler is started.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) runJob() {
	s.logger.Info("scheduled run starting")
	err := s.job(s.ctx)
	switch {
	case err == nil:
	case s.skip != nil && s.skip(err):
		s.logger.Info("scheduled run skipped", "reason", err)
	case errors.Is(err, context.Canceled):
		s.logger.Info("scheduled run cancelled")
	default:
		s.logger.Error("scheduled run failed", "err", err)
	}
}
