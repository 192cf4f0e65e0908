package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runnable is implemented by anything that can run suites by name.
type Runnable interface {
	RunSuites(ctx context.Context, suites []string) error
}

// Entry describes a registered schedule.
type Entry struct {
	Spec
	NextRun time.Time `json:"next_run"`
}

// Manager manages one Trigger per schedule spec.
type Manager struct {
	triggers []*Trigger
	specs    []Spec
	logger   *slog.Logger
}

// NewManager creates a trigger for each spec. Each trigger runs its suites through
// runnable.
func NewManager(specs []Spec, runnable Runnable, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "schedule")

	triggers := make([]*Trigger, 0, len(specs))
	for _, spec := range specs {
		suites := spec.Suites
		run := func(ctx context.Context) error {
			return runnable.RunSuites(ctx, suites)
		}

		trigger, err := NewTrigger(spec.CronSpec, run, logger.With("suites", suites))
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(spec.Suites, ","), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	logger.Info("schedule manager created", "trigger_count", len(triggers))
	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"suites", specs[i].Suites,
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &Manager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *Manager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

// Entries returns the registered schedules with their next run times.
func (m *Manager) Entries() []Entry {
	entries := make([]Entry, len(m.triggers))
	for i, trigger := range m.triggers {
		entries[i] = Entry{Spec: m.specs[i], NextRun: trigger.NextRun()}
	}
	return entries
}
