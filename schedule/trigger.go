// Package schedule runs configured suites on cron schedules.
//
// A Trigger runs a function according to one cron expression. A Manager owns one
// trigger per schedule entry, each naming the suites it runs.
//
// Example usage:
//
//	mgr, err := schedule.NewManager(specs, runnable, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mgr.Start(ctx) // Returns immediately, runs in background
//	<-ctx.Done()   // Wait for shutdown signal
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// parser accepts standard 5-field expressions and descriptors such as @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RunFunc is what a trigger runs.
type RunFunc func(ctx context.Context) error

// Trigger executes a RunFunc according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	run      RunFunc
	logger   *slog.Logger
}

// NewTrigger creates a new Trigger with the given cron specification.
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewTrigger(spec string, run RunFunc, logger *slog.Logger) (*Trigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		run:      run,
		logger:   logger.With("schedule", spec),
	}, nil
}

// Spec returns the cron expression.
func (t *Trigger) Spec() string {
	return t.spec
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

// loop is the main scheduling loop that runs in a goroutine.
func (t *Trigger) loop(ctx context.Context) {
	for {
		nextRun := t.schedule.Next(time.Now())
		wait := time.Until(nextRun)

		t.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("trigger shutting down")
			return
		case <-timer.C:
			t.execute(ctx)
		}
	}
}

// execute runs once and logs the result.
func (t *Trigger) execute(ctx context.Context) {
	t.logger.Info("starting scheduled run")

	if err := t.run(ctx); err != nil {
		t.logger.Warn("scheduled run completed with error", "error", err)
	} else {
		t.logger.Info("scheduled run completed successfully")
	}
}
