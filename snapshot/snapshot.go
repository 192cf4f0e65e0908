package snapshot

import (
	"errors"
	"time"

	"github.com/nomis52/e2eflow/workflow"
)

// ErrNotFound is returned when no snapshot exists for a workflow run.
var ErrNotFound = errors.New("no snapshots for workflow")

// Snapshot is an immutable, timestamped copy of a workflow run's state.
type Snapshot struct {
	WorkflowID string         `json:"workflow_id" yaml:"workflow_id"`
	Name       string         `json:"name" yaml:"name"`
	Seq        int            `json:"seq" yaml:"seq"`
	Timestamp  time.Time      `json:"timestamp" yaml:"timestamp"`
	State      workflow.State `json:"state" yaml:"state"`
	// Error tags snapshots taken after a failure.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SaveOption configures a snapshot being saved.
type SaveOption func(*Snapshot)

// WithError tags the snapshot with an error message.
func WithError(msg string) SaveOption {
	return func(s *Snapshot) {
		s.Error = msg
	}
}

// Store persists snapshots.
type Store interface {
	// Append adds a snapshot. Seq is assigned by the store.
	Append(s Snapshot) (Snapshot, error)
	// History returns the snapshots of a run, oldest first.
	History(id string) []Snapshot
	// IDs returns the runs with at least one snapshot, oldest first.
	IDs() []string
}
