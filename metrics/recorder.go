package metrics

import (
	"context"
	"fmt"

	"github.com/nomis52/e2eflow/workflow"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records the outcome of workflow runs.
type Recorder struct {
	runs     CounterVec
	steps    CounterVec
	retries  CounterVec
	duration GaugeVec
	lastRun  GaugeVec

	// flusher is set for registries that buffer updates
	flusher Flusher
}

// NewRecorder creates the workflow metrics on the registry.
func NewRecorder(reg Registry) (*Recorder, error) {
	runs, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_runs_total",
		Help: "Workflow runs by terminal status",
	}, []string{"workflow", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}

	steps, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_steps_total",
		Help: "Workflow steps by application and status",
	}, []string{"workflow", "application", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}

	retries, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_step_retries_total",
		Help: "Step attempts beyond the first",
	}, []string{"workflow"})
	if err != nil {
		return nil, fmt.Errorf("creating retries counter: %w", err)
	}

	duration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workflow_last_duration_seconds",
		Help: "Duration of the last run of a workflow",
	}, []string{"workflow"})
	if err != nil {
		return nil, fmt.Errorf("creating duration gauge: %w", err)
	}

	lastRun, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workflow_last_run_timestamp_seconds",
		Help: "Unix time the last run of a workflow ended",
	}, []string{"workflow", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating last run gauge: %w", err)
	}

	rec := &Recorder{
		runs:     runs,
		steps:    steps,
		retries:  retries,
		duration: duration,
		lastRun:  lastRun,
	}
	if f, ok := reg.(Flusher); ok {
		rec.flusher = f
	}
	return rec, nil
}

// flush sends the metrics of one run together. Failures are logged by the registry.
func (r *Recorder) flush() {
	if r.flusher != nil {
		_ = r.flusher.Flush(context.Background())
	}
}

// RecordRun records a finished run. A nil Recorder records nothing.
func (r *Recorder) RecordRun(name string, state workflow.State) {
	if r == nil {
		return
	}
	status := state.Status.String()
	r.runs.With(prometheus.Labels{"workflow": name, "status": status}).Inc()

	retries := 0
	for _, step := range state.StepResults {
		r.steps.With(prometheus.Labels{
			"workflow":    name,
			"application": step.Application,
			"status":      step.Status.String(),
		}).Inc()
		if step.Attempts > 1 {
			retries += step.Attempts - 1
		}
	}
	if retries > 0 {
		r.retries.With(prometheus.Labels{"workflow": name}).Add(float64(retries))
	}

	r.duration.With(prometheus.Labels{"workflow": name}).Set(state.Duration().Seconds())
	if state.EndedAt != nil {
		r.lastRun.With(prometheus.Labels{"workflow": name, "status": status}).Set(float64(state.EndedAt.Unix()))
	}
	r.flush()
}

// RecordSkipped counts a workflow that was not run because an earlier one failed.
func (r *Recorder) RecordSkipped(name string) {
	if r == nil {
		return
	}
	r.runs.With(prometheus.Labels{"workflow": name, "status": "skipped"}).Inc()
	r.flush()
}
