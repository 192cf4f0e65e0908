package runner_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nomis52/e2eflow/apps/appstest"
	"github.com/nomis52/e2eflow/logging"
	"github.com/nomis52/e2eflow/metrics"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/snapshot"
	"github.com/nomis52/e2eflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers
// ---------------------------------------------------------------------

func okStep(name, app string) workflow.Step {
	return workflow.Step{
		Name:        name,
		Application: app,
		StoreAs:     name,
		Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
			wc.Logger().Info("running step", "step", name)
			return name + "-output", nil
		},
	}
}

func failStep(name, app string) workflow.Step {
	return workflow.Step{
		Name:        name,
		Application: app,
		Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
			return nil, errors.New(name + " broke")
		},
	}
}

func newWorkflow(t *testing.T, r *runner.Runner, resolver appstest.Resolver, opener *appstest.Opener, name string, steps []workflow.Step, opts ...workflow.Option) *workflow.Workflow {
	t.Helper()
	opts = append([]workflow.Option{
		workflow.WithRetryDelay(0),
		workflow.WithStatusHandler(r.StatusHandler()),
		workflow.WithLoggerFactory(logging.StepLoggers(r.LogCollector())),
	}, opts...)
	wf, err := workflow.New(workflow.Define(name, steps...), resolver, opener, opts...)
	require.NoError(t, err)
	return wf
}

// panicWorkflow panics inside Execute.
type panicWorkflow struct{}

func (panicWorkflow) ID() workflow.RunID                  { return "20261019T090000.000Z-deadbeef" }
func (panicWorkflow) Name() string                        { return "panics" }
func (panicWorkflow) Validate() workflow.ValidationResult { return workflow.Valid() }
func (panicWorkflow) State() workflow.State               { return workflow.State{Status: workflow.Running} }
func (panicWorkflow) Execute(ctx context.Context) (workflow.State, error) {
	panic("surface exploded")
}

// Run
// ---------------------------------------------------------------------

func TestRunner_Run(t *testing.T) {
	resolver := appstest.NewResolver("web", "admin")

	t.Run("Success", func(t *testing.T) {
		r := runner.New()
		opener := appstest.NewOpener()
		wf := newWorkflow(t, r, resolver, opener, "checkout", []workflow.Step{
			okStep("open", "web"),
			okStep("approve", "admin"),
		})

		result := r.Run(context.Background(), wf, runner.Options{Report: true})

		assert.True(t, result.Success)
		assert.Empty(t, result.Error)
		assert.Equal(t, "checkout", result.Workflow)
		assert.Equal(t, wf.ID().String(), result.RunID)
		assert.Equal(t, workflow.Completed, result.State.Status)

		require.NotNil(t, result.Report)
		assert.Equal(t, "completed", result.Report.Status)
		assert.Equal(t, 1.0, result.Report.SuccessRate)
		assert.Equal(t, result.RunID, result.Report.RunID)
		require.Contains(t, result.Report.Logs, workflow.StepKey(1, "open"))
		assert.Contains(t, result.Report.Logs, workflow.StepKey(2, "approve"))
		assert.Empty(t, r.LogCollector().RunLogs(result.RunID), "captured logs are released after the run")

		latest, ok := r.Manager().Latest(result.RunID)
		require.True(t, ok)
		assert.Equal(t, workflow.Completed, latest.State.Status)
		assert.Empty(t, latest.Error)
		assert.Empty(t, r.Active())

		for _, s := range opener.All() {
			assert.True(t, s.Closed())
		}
	})

	t.Run("NoReport", func(t *testing.T) {
		r := runner.New()
		wf := newWorkflow(t, r, resolver, appstest.NewOpener(), "checkout", []workflow.Step{okStep("open", "web")})
		result := r.Run(context.Background(), wf, runner.Options{})
		assert.True(t, result.Success)
		assert.Nil(t, result.Report)
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		r := runner.New()
		broken := appstest.Resolver{"web": {URL: "http://web.test", Broken: errors.New("missing credentials")}}
		opener := appstest.NewOpener()
		var ran atomic.Bool
		wf := newWorkflow(t, r, broken, opener, "checkout", []workflow.Step{{
			Name:        "open",
			Application: "web",
			Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
				ran.Store(true)
				return nil, nil
			},
		}})

		result := r.Run(context.Background(), wf, runner.Options{Report: true})

		assert.False(t, result.Success)
		assert.False(t, ran.Load(), "invalid workflows are never executed")
		assert.Empty(t, opener.All(), "no surface is opened")
		require.NotNil(t, result.Validation)
		assert.False(t, result.Validation.Valid)
		assert.Contains(t, result.Error, "validation failed")
		assert.Contains(t, result.Error, "missing credentials")
		assert.Equal(t, workflow.NotStarted, result.State.Status)
		require.NotNil(t, result.Report)

		latest, ok := r.Manager().Latest(result.RunID)
		require.True(t, ok)
		assert.Equal(t, result.Error, latest.Error)
	})

	t.Run("StepFailure", func(t *testing.T) {
		r := runner.New()
		wf := newWorkflow(t, r, resolver, appstest.NewOpener(), "checkout", []workflow.Step{
			okStep("open", "web"),
			failStep("approve", "admin"),
			okStep("verify", "web"),
		})

		result := r.Run(context.Background(), wf, runner.Options{Report: true})

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "approve broke")
		assert.Equal(t, workflow.Failed, result.State.Status)
		assert.Len(t, result.State.StepResults, 2)
		assert.Equal(t, snapshot.StepCounts{Completed: 1, Failed: 1, Pending: 1}, result.Report.Counts)

		latest, ok := r.Manager().Latest(result.RunID)
		require.True(t, ok)
		assert.Equal(t, result.Error, latest.Error, "the snapshot is tagged with the failure")
	})

	t.Run("AbsorbedFailure", func(t *testing.T) {
		r := runner.New()
		wf := newWorkflow(t, r, resolver, appstest.NewOpener(), "checkout", []workflow.Step{
			failStep("open", "web"),
			okStep("approve", "admin"),
		}, workflow.WithContinueOnError(true))

		result := r.Run(context.Background(), wf, runner.Options{})

		assert.False(t, result.Success)
		assert.Equal(t, workflow.Failed, result.State.Status)
		assert.Len(t, result.State.StepResults, 2)
		assert.Contains(t, result.Error, "open broke")
	})

	t.Run("Panic", func(t *testing.T) {
		r := runner.New()
		var result runner.Result
		require.NotPanics(t, func() {
			result = r.Run(context.Background(), panicWorkflow{}, runner.Options{Report: true})
		})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "workflow panicked: surface exploded")
		require.NotNil(t, result.Report)

		_, ok := r.Manager().Latest(result.RunID)
		assert.True(t, ok)
	})

	t.Run("PanicInsideExecute", func(t *testing.T) {
		r := runner.New()
		opener := appstest.NewOpener()
		calls := 0
		factory := func(base *slog.Logger, runID, step string) *slog.Logger {
			if calls++; calls == 2 {
				panic("factory exploded")
			}
			return base
		}
		wf := newWorkflow(t, r, resolver, opener, "checkout", []workflow.Step{
			okStep("open", "web"),
			okStep("approve", "admin"),
		}, workflow.WithLoggerFactory(factory))

		result := r.Run(context.Background(), wf, runner.Options{})

		assert.False(t, result.Success)
		assert.Equal(t, workflow.Failed, result.State.Status)
		assert.Contains(t, result.Error, "factory exploded")
		for _, s := range opener.All() {
			assert.True(t, s.Closed(), "surface %s released", s.Name())
		}

		latest, ok := r.Manager().Latest(result.RunID)
		require.True(t, ok)
		assert.Equal(t, workflow.Failed, latest.State.Status)
	})

	t.Run("Cancelled", func(t *testing.T) {
		r := runner.New()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		wf := newWorkflow(t, r, resolver, appstest.NewOpener(), "checkout", []workflow.Step{okStep("open", "web")})

		result := r.Run(ctx, wf, runner.Options{})

		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})
}

func TestRunner_Metrics(t *testing.T) {
	reg, err := metrics.NewScrapeRegistry("e2eflow")
	require.NoError(t, err)
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	r := runner.New(runner.WithRecorder(rec))
	resolver := appstest.NewResolver("web")
	wfs := []runner.Workflow{
		newWorkflow(t, r, resolver, appstest.NewOpener(), "signup", []workflow.Step{failStep("open", "web")}),
		newWorkflow(t, r, resolver, appstest.NewOpener(), "checkout", []workflow.Step{okStep("open", "web")}),
	}
	r.RunSequence(context.Background(), wfs, runner.Options{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, req)
	body := w.Body.String()

	assert.Contains(t, body, `e2eflow_workflow_runs_total{status="failed",workflow="signup"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_runs_total{status="skipped",workflow="checkout"} 1`)
	assert.Contains(t, body, `e2eflow_workflow_steps_total{application="web",status="failed",workflow="signup"} 1`)
}

// RunSequence
// ---------------------------------------------------------------------

func TestRunner_RunSequence(t *testing.T) {
	resolver := appstest.NewResolver("web", "admin")

	build := func(t *testing.T, r *runner.Runner) []runner.Workflow {
		return []runner.Workflow{
			newWorkflow(t, r, resolver, appstest.NewOpener(), "first", []workflow.Step{okStep("open", "web")}),
			newWorkflow(t, r, resolver, appstest.NewOpener(), "second", []workflow.Step{failStep("approve", "admin")}),
			newWorkflow(t, r, resolver, appstest.NewOpener(), "third", []workflow.Step{okStep("open", "web")}),
		}
	}

	tests := []struct {
		name        string
		opts        runner.Options
		wantSuccess []bool
		wantSkipped []bool
	}{
		{
			name:        "SequentialStopsAtFailure",
			opts:        runner.Options{},
			wantSuccess: []bool{true, false, false},
			wantSkipped: []bool{false, false, true},
		},
		{
			name:        "SequentialContinueOnError",
			opts:        runner.Options{ContinueOnError: true},
			wantSuccess: []bool{true, false, true},
			wantSkipped: []bool{false, false, false},
		},
		{
			name:        "Parallel",
			opts:        runner.Options{Parallel: true},
			wantSuccess: []bool{true, false, true},
			wantSkipped: []bool{false, false, false},
		},
		{
			name:        "ParallelLimited",
			opts:        runner.Options{Parallel: true, MaxParallel: 1},
			wantSuccess: []bool{true, false, true},
			wantSkipped: []bool{false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runner.New()
			wfs := build(t, r)
			results := r.RunSequence(context.Background(), wfs, tt.opts)

			require.Len(t, results, len(wfs))
			for i, res := range results {
				assert.Equal(t, wfs[i].Name(), res.Workflow, "results are in input order")
				assert.Equal(t, tt.wantSuccess[i], res.Success, res.Workflow)
				assert.Equal(t, tt.wantSkipped[i], res.Skipped, res.Workflow)
			}
			if tt.wantSkipped[2] {
				assert.Equal(t, workflow.NotStarted, results[2].State.Status)
				_, ok := r.Manager().Latest(results[2].RunID)
				assert.False(t, ok, "skipped workflows leave no snapshot")
			}
		})
	}
}

func TestRunner_RunSequence_ParallelIndependence(t *testing.T) {
	r := runner.New()
	resolver := appstest.NewResolver("web", "admin")

	const n = 4
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		release  = make(chan struct{})
		started  sync.WaitGroup
	)
	started.Add(n)

	openers := make([]*appstest.Opener, n)
	wfs := make([]runner.Workflow, n)
	for i := range n {
		openers[i] = appstest.NewOpener()
		wfs[i] = newWorkflow(t, r, resolver, openers[i], "parallel", []workflow.Step{
			{
				Name:        "wait",
				Application: "web",
				StoreAs:     "id",
				Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
					cur := inFlight.Add(1)
					defer inFlight.Add(-1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					started.Done()
					<-release
					return wc.ID().String(), nil
				},
			},
			okStep("approve", "admin"),
		})
	}

	go func() {
		started.Wait()
		close(release)
	}()

	results := r.RunSequence(context.Background(), wfs, runner.Options{Parallel: true})

	assert.Equal(t, int32(n), peak.Load(), "all workflows run at once")
	seen := make(map[string]bool)
	for i, res := range results {
		require.True(t, res.Success, res.Error)
		assert.Equal(t, res.RunID, res.State.Data["id"], "each workflow keeps its own data")
		assert.False(t, seen[res.RunID])
		seen[res.RunID] = true
		assert.Len(t, openers[i].Opened("web"), 1, "each workflow opens its own surfaces")
		for _, s := range openers[i].All() {
			assert.True(t, s.Closed())
		}
	}
	assert.Len(t, r.Manager().IDs(), n)
}

// Start
// ---------------------------------------------------------------------

func TestRunner_Start(t *testing.T) {
	r := runner.New()
	resolver := appstest.NewResolver("web")

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := newWorkflow(t, r, resolver, appstest.NewOpener(), "nightly", []workflow.Step{{
		Name:        "wait",
		Application: "web",
		Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
			wc.SetStatus("waiting for release")
			close(started)
			<-release
			return nil, nil
		},
	}})

	done := make(chan []runner.Result, 1)
	require.NoError(t, r.Start("nightly", []runner.Workflow{blocking}, runner.Options{}, func(results []runner.Result) {
		done <- results
	}))
	<-started

	assert.True(t, r.IsRunning("nightly"))
	assert.Equal(t, []string{"nightly"}, r.Running())
	err := r.Start("nightly", nil, runner.Options{}, nil)
	assert.ErrorIs(t, err, runner.ErrRunInProgress)

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "nightly", active[0].Workflow)
	assert.Equal(t, "waiting for release", active[0].Status)
	assert.Equal(t, workflow.Running, active[0].State.Status)

	close(release)
	select {
	case results := <-done:
		require.Len(t, results, 1)
		assert.True(t, results[0].Success)
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
	}

	assert.Eventually(t, func() bool { return !r.IsRunning("nightly") }, time.Second, 10*time.Millisecond)
	assert.Empty(t, r.Active())
}
