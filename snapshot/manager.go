package snapshot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nomis52/e2eflow/workflow"
)

// Manager records workflow state snapshots and derives metrics from them.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source used to timestamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager on top of a store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "snapshot")
	return m
}

// SaveState appends a deep copy of the state to the run's history. Earlier snapshots
// of the same run are never replaced.
func (m *Manager) SaveState(id, name string, state workflow.State, opts ...SaveOption) (Snapshot, error) {
	snap := Snapshot{
		WorkflowID: id,
		Name:       name,
		Timestamp:  m.now(),
		State:      state.Clone(),
	}
	for _, opt := range opts {
		opt(&snap)
	}

	saved, err := m.store.Append(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("saving snapshot of %s: %w", id, err)
	}
	m.logger.Debug("saved snapshot",
		"workflow_id", id,
		"seq", saved.Seq,
		"status", state.Status,
		"error", saved.Error,
	)
	return saved, nil
}

// History returns every snapshot of a run, oldest first.
func (m *Manager) History(id string) []Snapshot {
	history := m.store.History(id)
	for i := range history {
		history[i].State = history[i].State.Clone()
	}
	return history
}

// Latest returns the most recent snapshot of a run.
func (m *Manager) Latest(id string) (Snapshot, bool) {
	history := m.History(id)
	if len(history) == 0 {
		return Snapshot{}, false
	}
	return history[len(history)-1], true
}

// IDs returns the runs with snapshots, oldest first.
func (m *Manager) IDs() []string {
	return m.store.IDs()
}

// Metrics summarizes the snapshots of a run.
type Metrics struct {
	WorkflowID string        `json:"workflow_id" yaml:"workflow_id"`
	Name       string        `json:"name" yaml:"name"`
	Snapshots  int           `json:"snapshots" yaml:"snapshots"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	StepCounts StepCounts    `json:"step_counts" yaml:"step_counts"`
	First      Snapshot      `json:"first" yaml:"first"`
	Latest     Snapshot      `json:"latest" yaml:"latest"`
}

// Metrics computes the summary of a run. The duration comes from the latest state's
// start and end times, falling back to the time between the first and latest snapshot
// for runs that have not ended.
func (m *Manager) Metrics(id string) (Metrics, error) {
	history := m.History(id)
	if len(history) == 0 {
		return Metrics{}, fmt.Errorf("%w %s", ErrNotFound, id)
	}
	first, latest := history[0], history[len(history)-1]

	duration := latest.State.Duration()
	if duration == 0 {
		duration = latest.Timestamp.Sub(first.Timestamp)
	}

	return Metrics{
		WorkflowID: id,
		Name:       latest.Name,
		Snapshots:  len(history),
		Duration:   duration,
		StepCounts: countSteps(latest.State),
		First:      first,
		Latest:     latest,
	}, nil
}

// Summary is the latest snapshot of a run, without its step details.
type Summary struct {
	WorkflowID string          `json:"workflow_id"`
	Name       string          `json:"name"`
	Status     workflow.Status `json:"status"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Steps      StepCounts      `json:"steps"`
	Errors     int             `json:"errors"`
	Error      string          `json:"error,omitempty"`
}

// Summaries returns a summary of every run, most recent first.
func (m *Manager) Summaries() []Summary {
	ids := m.IDs()
	result := make([]Summary, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		latest, ok := m.Latest(ids[i])
		if !ok {
			continue
		}
		result = append(result, Summary{
			WorkflowID: latest.WorkflowID,
			Name:       latest.Name,
			Status:     latest.State.Status,
			StartedAt:  latest.State.StartedAt,
			EndedAt:    latest.State.EndedAt,
			Steps:      countSteps(latest.State),
			Errors:     len(latest.State.Errors),
			Error:      latest.Error,
		})
	}
	return result
}
