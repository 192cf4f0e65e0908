package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/nomis52/e2eflow/logging"
	"github.com/nomis52/e2eflow/workflow"
	"gopkg.in/yaml.v3"
)

// Report output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// StepCounts counts steps by status.
type StepCounts struct {
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Pending   int `json:"pending" yaml:"pending"`
	Running   int `json:"running" yaml:"running"`
}

func countSteps(state workflow.State) StepCounts {
	var c StepCounts
	for _, r := range state.StepResults {
		switch r.Status {
		case workflow.StepCompleted:
			c.Completed++
		case workflow.StepFailed:
			c.Failed++
		case workflow.StepSkipped:
			c.Skipped++
		case workflow.StepRunning:
			c.Running++
		default:
			c.Pending++
		}
	}
	// Declared steps that were never attempted
	if missing := state.TotalSteps - len(state.StepResults); missing > 0 {
		c.Pending += missing
	}
	return c
}

// Report is a serializable summary of a workflow run.
type Report struct {
	// RunID and Workflow identify the run. They are filled in by the caller.
	RunID    string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Workflow string `json:"workflow,omitempty" yaml:"workflow,omitempty"`

	Status         string     `json:"status" yaml:"status"`
	TotalSteps     int        `json:"total_steps" yaml:"total_steps"`
	AttemptedSteps int        `json:"attempted_steps" yaml:"attempted_steps"`
	Counts         StepCounts `json:"counts" yaml:"counts"`
	// SuccessRate is the share of declared steps that completed, between 0 and 1.
	SuccessRate float64          `json:"success_rate" yaml:"success_rate"`
	StartedAt   *time.Time       `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt     *time.Time       `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Duration    string           `json:"duration" yaml:"duration"`
	Steps       []StepReport     `json:"steps" yaml:"steps"`
	Errors      []workflow.Error `json:"errors" yaml:"errors"`
	DataKeys    []string         `json:"data_keys" yaml:"data_keys"`

	// Logs holds captured step logs keyed by step key, when available.
	Logs map[string][]logging.LogEntry `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// StepReport is the report line of one attempted step.
type StepReport struct {
	Step        int      `json:"step" yaml:"step"`
	Name        string   `json:"name" yaml:"name"`
	Application string   `json:"application" yaml:"application"`
	Status      string   `json:"status" yaml:"status"`
	Attempts    int      `json:"attempts" yaml:"attempts"`
	Duration    string   `json:"duration" yaml:"duration"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// GenerateReport builds a report from a state. It depends only on its input.
func GenerateReport(state workflow.State) Report {
	counts := countSteps(state)
	r := Report{
		Status:         state.Status.String(),
		TotalSteps:     state.TotalSteps,
		AttemptedSteps: len(state.StepResults),
		Counts:         counts,
		Duration:       state.Duration().String(),
		Steps:          make([]StepReport, 0, len(state.StepResults)),
		Errors:         slices.Clone(state.Errors),
		DataKeys:       slices.Sorted(maps.Keys(state.Data)),
	}
	if r.Errors == nil {
		r.Errors = []workflow.Error{}
	}
	if r.DataKeys == nil {
		r.DataKeys = []string{}
	}
	if state.TotalSteps > 0 {
		r.SuccessRate = float64(counts.Completed) / float64(state.TotalSteps)
	}
	if state.StartedAt != nil {
		t := *state.StartedAt
		r.StartedAt = &t
	}
	if state.EndedAt != nil {
		t := *state.EndedAt
		r.EndedAt = &t
	}

	for _, res := range state.StepResults {
		line := StepReport{
			Step:        res.Step,
			Name:        res.Name,
			Application: res.Application,
			Status:      res.Status.String(),
			Attempts:    res.Attempts,
			Duration:    res.Duration.Round(time.Millisecond).String(),
			Artifacts:   slices.Clone(res.Artifacts),
		}
		if res.Error != nil {
			line.Error = res.Error.Message
		}
		r.Steps = append(r.Steps, line)
	}
	return r
}

// Encode writes the report in the given format.
func (r Report) Encode(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}
