package workflow

import (
	"errors"
	"fmt"

	"github.com/nomis52/e2eflow/apps"
)

// ErrAlreadyExecuted is matched by AlreadyExecutedError.
var ErrAlreadyExecuted = errors.New("workflow already executed")

// ErrStepTimeout is wrapped by attempts that exceed their step timeout.
var ErrStepTimeout = errors.New("step timed out")

// ErrPanicked is wrapped by the error Execute returns when the run panicked outside a
// step operation, for example in a logger factory or while switching applications.
var ErrPanicked = errors.New("workflow panicked")

// ConfigurationError is returned when a required application's configuration is
// invalid.
type ConfigurationError = apps.ConfigurationError

// NotInitializedError is returned when a step uses an application that was never
// initialized for the run.
type NotInitializedError = apps.NotInitializedError

// StepExecutionError is returned from Execute when a step fails every attempt and the
// workflow does not continue on error.
type StepExecutionError struct {
	Step        int
	Name        string
	Application string
	Attempts    int
	Err         error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s on %s) failed after %d attempt(s): %v",
		e.Step, e.Name, e.Application, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// AlreadyExecutedError is returned when Execute is called on a workflow that has
// already run.
type AlreadyExecutedError struct {
	ID     RunID
	Status Status
}

func (e *AlreadyExecutedError) Error() string {
	return fmt.Sprintf("workflow %s already executed (status %s)", e.ID, e.Status)
}

func (e *AlreadyExecutedError) Is(target error) bool {
	return target == ErrAlreadyExecuted
}
