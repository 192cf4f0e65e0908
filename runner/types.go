package runner

import (
	"context"
	"time"

	"github.com/nomis52/e2eflow/snapshot"
	"github.com/nomis52/e2eflow/workflow"
)

// Workflow is the part of *workflow.Workflow the runner drives.
type Workflow interface {
	ID() workflow.RunID
	Name() string
	Validate() workflow.ValidationResult
	Execute(ctx context.Context) (workflow.State, error)
	State() workflow.State
}

// Options controls how workflows are run.
type Options struct {
	// Report attaches a generated report to each result.
	Report bool `json:"report"`
	// ContinueOnError keeps a sequential run going after a workflow fails.
	ContinueOnError bool `json:"continue_on_error"`
	// Parallel runs every workflow of a sequence concurrently.
	Parallel bool `json:"parallel"`
	// MaxParallel bounds concurrent workflows when Parallel is set. 0 means no limit.
	MaxParallel int `json:"max_parallel"`
}

// Result is the normalized outcome of one workflow.
type Result struct {
	Workflow string `json:"workflow"`
	RunID    string `json:"run_id"`
	Success  bool   `json:"success"`
	// Skipped is set for workflows that never ran because an earlier one failed.
	Skipped bool `json:"skipped,omitempty"`
	// Validation holds the failed pre-flight checks of a workflow that was never executed.
	Validation *workflow.ValidationResult `json:"validation,omitempty"`
	State      workflow.State             `json:"state"`
	Report     *snapshot.Report           `json:"report,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// ActiveRun describes a workflow that is currently executing.
type ActiveRun struct {
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	Status    string         `json:"status,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	State     workflow.State `json:"state"`
}
