// Package scheduler wraps gocron for the periodic jobs run by the server
// (remote fetch warmer) and the editing client (status polling).
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// Scheduler runs named periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// Job is a handle to a scheduled task.
type Job struct {
	job gocron.Job
}

// New creates a scheduler. It does nothing until Start.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.RuntimeError("failed to create scheduler").WithCause(err).Build()
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	slog.Debug("Starting scheduler")
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	slog.Debug("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Every runs task every interval. Overlapping runs of the same job are
// skipped. The task receives ctx.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task func(context.Context)) (*Job, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			task(ctx)
			slog.Debug("Scheduled job finished", slog.String("job", name), logfields.Duration(time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, errors.RuntimeError("failed to schedule job").
			WithCause(err).WithContext("job", name).Build()
	}
	return &Job{job: job}, nil
}

// RunNow triggers the job immediately in addition to its schedule.
func (j *Job) RunNow() error {
	if j == nil {
		return nil
	}
	return j.job.RunNow()
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.job.ID().String() }
