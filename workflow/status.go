package workflow

import "fmt"

// Status represents the execution state of a workflow run.
type Status int

const (
	// NotStarted indicates Execute has not been called yet.
	NotStarted Status = iota

	// Running indicates the workflow is executing its steps.
	Running

	// Completed indicates every declared step ran and no error was recorded.
	Completed

	// Failed indicates the run aborted on an error, or finished with recorded errors
	// while continuing past failed steps.
	Failed

	// Cancelled indicates the caller's context was cancelled during the run.
	Cancelled
)

var statusNames = map[Status]string{
	NotStarted: "not_started",
	Running:    "running",
	Completed:  "completed",
	Failed:     "failed",
	Cancelled:  "cancelled",
}

// String returns a human-readable representation of the Status
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown workflow status %q", string(text))
}

// StepStatus represents the outcome of a single step.
type StepStatus int

const (
	// StepPending indicates the step has not been attempted
	StepPending StepStatus = iota

	// StepRunning indicates the step is executing
	StepRunning

	// StepCompleted indicates an attempt of the step succeeded
	StepCompleted

	// StepFailed indicates every attempt of the step failed
	StepFailed

	// StepSkipped indicates the step was deliberately not run
	StepSkipped
)

var stepStatusNames = map[StepStatus]string{
	StepPending:   "pending",
	StepRunning:   "running",
	StepCompleted: "completed",
	StepFailed:    "failed",
	StepSkipped:   "skipped",
}

// String returns a human-readable representation of the StepStatus
func (s StepStatus) String() string {
	if name, ok := stepStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StepStatus) UnmarshalText(text []byte) error {
	for status, name := range stepStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown step status %q", string(text))
}
