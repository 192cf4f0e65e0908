// Package runner executes workflows and normalizes their outcomes.
//
// The runner handles:
//   - Pre-flight validation before anything is opened
//   - Executing workflows alone, in sequence or in parallel
//   - Snapshotting the final state of every run
//   - Recording run metrics and attaching captured step logs to reports
//   - Tracking live runs for status reporting
//
// Run never returns an error: validation failures, step failures and panics all become
// a failed Result.
//
// # Example
//
//	r := runner.New(runner.WithLogger(logger), runner.WithManager(manager))
//
//	results := r.RunSequence(ctx, []runner.Workflow{signup, checkout}, runner.Options{Report: true})
//	for _, res := range results {
//	    fmt.Printf("%s: success=%v %s\n", res.Workflow, res.Success, res.Error)
//	}
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nomis52/e2eflow/logging"
	"github.com/nomis52/e2eflow/metrics"
	"github.com/nomis52/e2eflow/progress"
	"github.com/nomis52/e2eflow/snapshot"
	"github.com/nomis52/e2eflow/workflow"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when starting a run under a key that is already running.
var ErrRunInProgress = errors.New("run already in progress")

// Runner executes workflows.
type Runner struct {
	logger   *slog.Logger
	manager  *snapshot.Manager
	recorder *metrics.Recorder
	statuses *progress.StatusHandler
	logs     *logging.LogCollector

	mu      sync.Mutex
	active  map[string]activeRun // by run ID
	running map[string]bool      // background runs by key
}

type activeRun struct {
	wf      Workflow
	started time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithManager sets the snapshot manager that final states are saved to.
func WithManager(m *snapshot.Manager) Option {
	return func(r *Runner) {
		r.manager = m
	}
}

// WithRecorder records run metrics.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithStatusHandler shares a status handler with the workflows being run.
func WithStatusHandler(h *progress.StatusHandler) Option {
	return func(r *Runner) {
		r.statuses = h
	}
}

// WithLogCollector shares a log collector with the workflows being run.
func WithLogCollector(c *logging.LogCollector) Option {
	return func(r *Runner) {
		r.logs = c
	}
}

// New creates a new Runner. Without options, snapshots are kept in memory.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:   slog.Default(),
		statuses: progress.NewStatusHandler(),
		logs:     logging.NewLogCollector(),
		active:   make(map[string]activeRun),
		running:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.manager == nil {
		r.manager = snapshot.NewManager(snapshot.NewMemoryStore(0), snapshot.WithLogger(r.logger))
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

// Manager returns the snapshot manager.
func (r *Runner) Manager() *snapshot.Manager {
	return r.manager
}

// StatusHandler returns the handler live status lines are written to.
func (r *Runner) StatusHandler() *progress.StatusHandler {
	return r.statuses
}

// LogCollector returns the collector step logs are captured in.
func (r *Runner) LogCollector() *logging.LogCollector {
	return r.logs
}

// Run validates and executes a single workflow.
func (r *Runner) Run(ctx context.Context, wf Workflow, opts Options) (result Result) {
	id, name := wf.ID().String(), wf.Name()
	result = Result{Workflow: name, RunID: id}
	logger := r.logger.With("workflow", name, "run_id", id)

	validation := wf.Validate()
	if !validation.Valid {
		result.Validation = &validation
		result.State = wf.State()
		result.Error = "validation failed: " + strings.Join(validation.Errors, "; ")
		logger.Error("workflow failed validation", "errors", validation.Errors)
		r.save(logger, id, name, result.State, result.Error)
		return r.finish(result, opts)
	}

	r.track(id, wf)
	defer r.untrack(id)

	logger.Info("running workflow")
	state, err := r.execute(ctx, wf)
	result.State = state
	result.Success = err == nil && state.Status == workflow.Completed
	if !result.Success {
		result.Error = failureMessage(state, err)
		logger.Error("workflow failed", "status", state.Status, "error", result.Error, "duration", state.Duration())
	} else {
		logger.Info("workflow completed", "duration", state.Duration())
	}

	r.save(logger, id, name, state, result.Error)
	r.recorder.RecordRun(name, state)
	return r.finish(result, opts)
}

// execute runs the workflow, turning a panic into an error.
func (r *Runner) execute(ctx context.Context, wf Workflow) (state workflow.State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			state = wf.State()
			err = fmt.Errorf("workflow panicked: %v", rec)
		}
	}()
	return wf.Execute(ctx)
}

func (r *Runner) save(logger *slog.Logger, id, name string, state workflow.State, errMsg string) {
	var opts []snapshot.SaveOption
	if errMsg != "" {
		opts = append(opts, snapshot.WithError(errMsg))
	}
	if _, err := r.manager.SaveState(id, name, state, opts...); err != nil {
		logger.Error("failed to save workflow state", "error", err)
	}
}

func (r *Runner) finish(result Result, opts Options) Result {
	if opts.Report {
		report := snapshot.GenerateReport(result.State)
		report.RunID = result.RunID
		report.Workflow = result.Workflow
		if logs := r.logs.RunLogs(result.RunID); len(logs) > 0 {
			report.Logs = logs
		}
		result.Report = &report
	}
	r.logs.Forget(result.RunID)
	return result
}

// failureMessage describes why a run did not complete.
func failureMessage(state workflow.State, err error) string {
	if err != nil {
		return err.Error()
	}
	// Failures absorbed under continue-on-error
	msgs := make([]string, 0, len(state.Errors))
	for _, e := range state.Errors {
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("workflow ended %s", state.Status)
	}
	return strings.Join(msgs, "; ")
}

// RunSequence runs several workflows and returns one result per workflow, in input
// order. Sequential runs stop at the first failure unless opts.ContinueOnError is set;
// the remaining workflows are reported as skipped. Parallel runs execute every workflow,
// at most opts.MaxParallel at a time.
func (r *Runner) RunSequence(ctx context.Context, wfs []Workflow, opts Options) []Result {
	results := make([]Result, len(wfs))

	if opts.Parallel {
		g := new(errgroup.Group)
		if opts.MaxParallel > 0 {
			g.SetLimit(opts.MaxParallel)
		}
		for i, wf := range wfs {
			g.Go(func() error {
				results[i] = r.Run(ctx, wf, opts)
				return nil
			})
		}
		_ = g.Wait()
		return results
	}

	stopped := false
	for i, wf := range wfs {
		if stopped {
			results[i] = Result{
				Workflow: wf.Name(),
				RunID:    wf.ID().String(),
				Skipped:  true,
				State:    wf.State(),
				Error:    "skipped after an earlier workflow failed",
			}
			r.recorder.RecordSkipped(wf.Name())
			continue
		}
		results[i] = r.Run(ctx, wf, opts)
		if !results[i].Success && !opts.ContinueOnError {
			r.logger.Warn("stopping sequence after failure", "workflow", wf.Name(), "remaining", len(wfs)-i-1)
			stopped = true
		}
	}
	return results
}

// Start runs workflows in the background under a key. It returns ErrRunInProgress if
// a run with the same key has not finished. done, if non-nil, receives the results.
func (r *Runner) Start(key string, wfs []Workflow, opts Options, done func([]Result)) error {
	if !r.tryStart(key) {
		return ErrRunInProgress
	}

	r.logger.Info("starting background run", "key", key, "workflows", len(wfs))
	go func() {
		defer r.stop(key)
		results := r.RunSequence(context.Background(), wfs, opts)
		if done != nil {
			done(results)
		}
	}()
	return nil
}

// IsRunning returns true if a background run with the key is in progress.
func (r *Runner) IsRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[key]
}

// Active returns the workflows currently executing, oldest first.
func (r *Runner) Active() []ActiveRun {
	r.mu.Lock()
	active := maps.Clone(r.active)
	r.mu.Unlock()

	result := make([]ActiveRun, 0, len(active))
	for id, run := range active {
		result = append(result, ActiveRun{
			RunID:     id,
			Workflow:  run.wf.Name(),
			Status:    r.statuses.Get(id),
			StartedAt: run.started,
			State:     run.wf.State(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].RunID < result[j].RunID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// Running returns the keys of background runs in progress.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.running))
}

func (r *Runner) track(id string, wf Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = activeRun{wf: wf, started: time.Now()}
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
	r.statuses.Remove(id)
}

func (r *Runner) tryStart(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[key] {
		return false
	}
	r.running[key] = true
	return true
}

func (r *Runner) stop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, key)
}
