package workflow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nomis52/e2eflow/apps"
)

// StepFunc is the operation of a step. It receives the live workflow context and
// returns a value that is stored under the step's StoreAs key on success.
type StepFunc func(ctx context.Context, wc *Context) (any, error)

// ValidatorFunc is an optional pre-flight check for a step. It runs during Validate
// against a detached copy of the not-yet-started context.
type ValidatorFunc func(wc *Context) ValidationResult

// Step is a declared unit of work bound to one application.
type Step struct {
	// Name identifies the step in results and logs.
	Name string

	// Application is the target application the step runs against.
	Application string

	// Run performs the step.
	Run StepFunc

	// Validate is an optional pre-flight check.
	Validate ValidatorFunc

	// StoreAs writes the step's output into State.Data under this key.
	StoreAs string

	// Recoverable is copied onto the step's Error when it fails. It is a hint for
	// reporting and does not change control flow.
	Recoverable bool

	// Timeout bounds each attempt of the step. Zero means only the workflow timeout
	// applies.
	Timeout time.Duration
}

// ValidationResult is the outcome of a pre-flight check.
type ValidationResult struct {
	Valid  bool     `json:"valid" yaml:"valid"`
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Valid returns a passing ValidationResult.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing ValidationResult with the given messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Error records a failure during a workflow run.
type Error struct {
	// Step is the 1-based step number, or 0 for failures outside any step.
	Step        int    `json:"step" yaml:"step"`
	Message     string `json:"message" yaml:"message"`
	Application string `json:"application,omitempty" yaml:"application,omitempty"`
	Detail      string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Artifact    string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Recoverable bool   `json:"recoverable" yaml:"recoverable"`
}

func (e *Error) Error() string {
	if e.Step == 0 {
		return e.Message
	}
	return fmt.Sprintf("step %d: %s", e.Step, e.Message)
}

// StepResult is the sealed record of one step. Exactly one StepResult is recorded per
// attempted step regardless of how many attempts it took.
type StepResult struct {
	Step        int           `json:"step" yaml:"step"`
	Name        string        `json:"name" yaml:"name"`
	Application string        `json:"application" yaml:"application"`
	StartTime   time.Time     `json:"start_time" yaml:"start_time"`
	EndTime     time.Time     `json:"end_time" yaml:"end_time"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Status      StepStatus    `json:"status" yaml:"status"`
	Attempts    int           `json:"attempts" yaml:"attempts"`
	Output      any           `json:"output,omitempty" yaml:"output,omitempty"`
	Error       *Error        `json:"error,omitempty" yaml:"error,omitempty"`
	Artifacts   []string      `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// IsSuccess returns true if the step completed.
func (r StepResult) IsSuccess() bool {
	return r.Status == StepCompleted
}

func (r StepResult) clone() StepResult {
	c := r
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	c.Artifacts = slices.Clone(r.Artifacts)
	return c
}

// State is the record of one workflow run.
type State struct {
	// CurrentStep is the 1-based position of the step being (or last) attempted.
	CurrentStep int `json:"current_step" yaml:"current_step"`
	// TotalSteps is the number of declared steps.
	TotalSteps int `json:"total_steps" yaml:"total_steps"`
	// StepResults holds one sealed result per attempted step, in execution order.
	StepResults []StepResult `json:"step_results" yaml:"step_results"`
	// Data holds values passed forward between steps.
	Data map[string]any `json:"data" yaml:"data"`
	// Errors holds every recorded failure in the order it occurred.
	Errors []Error `json:"errors" yaml:"errors"`
	// Status is the run's position in the state machine.
	Status    Status     `json:"status" yaml:"status"`
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

// Clone returns a deep copy of the state. Values stored in Data are copied by
// assignment.
func (s State) Clone() State {
	c := s
	c.Data = maps.Clone(s.Data)
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	c.StepResults = make([]StepResult, len(s.StepResults))
	for i, r := range s.StepResults {
		c.StepResults[i] = r.clone()
	}
	c.Errors = slices.Clone(s.Errors)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return c
}

// Duration returns the wall-clock duration of the run, or zero if it has not ended.
func (s State) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// ErrorsForStep returns the recorded errors for a step number.
func (s State) ErrorsForStep(step int) []Error {
	var result []Error
	for _, e := range s.Errors {
		if e.Step == step {
			result = append(result, e)
		}
	}
	return result
}

// Capturer captures diagnostic artifacts for an application surface, returning an
// artifact reference.
type Capturer interface {
	Capture(ctx context.Context, app string, surface apps.Surface, label string) (string, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context, app string, surface apps.Surface, label string) (string, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context, app string, surface apps.Surface, label string) (string, error) {
	return f(ctx, app, surface, label)
}
