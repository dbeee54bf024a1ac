// Package pipeline schedules the three periodic jobs: ingest, refresh and
// alert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Orchestrator runs jobs on their intervals with robfig/cron. A job never
// overlaps itself: a tick that arrives while the previous run is still going
// is skipped.
type Orchestrator struct {
	jobs       []Job
	runOnStart bool
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. When runOnStart is set every job
// also runs once immediately.
func NewOrchestrator(jobs []Job, runOnStart bool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		runOnStart: runOnStart,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Run schedules every job and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.jobs) == 0 {
		return errors.New("pipeline: no jobs configured")
	}

	cl := cronLogger{o.logger}
	c := cron.New(cron.WithLogger(cl))
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))

	wrapped := make([]cron.Job, len(o.jobs))
	for i, j := range o.jobs {
		if j.Interval <= 0 {
			return fmt.Errorf("pipeline: job %s has no interval", j.Name)
		}
		wrapped[i] = chain.Then(o.cronJob(ctx, j))
		c.Schedule(cron.Every(j.Interval), wrapped[i])
		o.logger.InfoContext(ctx, "job scheduled",
			slog.String("job", j.Name),
			slog.Duration("interval", j.Interval),
		)
	}

	c.Start()
	var wg sync.WaitGroup
	if o.runOnStart {
		// Same wrapper as the schedule, so a slow first run also blocks the
		// first tick.
		for _, w := range wrapped {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run()
			}()
		}
	}

	<-ctx.Done()
	o.logger.Info("orchestrator stopping, waiting for running jobs")
	<-c.Stop().Done()
	wg.Wait()
	o.logger.Info("orchestrator stopped")
	return nil
}

// RunOnce runs every job a single time in order. Every job runs even when
// an earlier one fails; the errors are joined.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	var errs []error
	for _, j := range o.jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runJob(ctx, j); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) cronJob(ctx context.Context, j Job) cron.Job {
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_ = o.runJob(ctx, j)
	})
}

func (o *Orchestrator) runJob(ctx context.Context, j Job) error {
	start := time.Now()
	o.logger.DebugContext(ctx, "job started", slog.String("job", j.Name))
	err := j.Run(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "job failed",
			slog.String("job", j.Name),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return err
	}
	o.logger.InfoContext(ctx, "job finished",
		slog.String("job", j.Name),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
