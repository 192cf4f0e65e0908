// Package workflow runs multi-step end-to-end scenarios that span several independently
// running applications.
//
// # Core Concepts
//
// A Workflow is built from a Definition: a name and an ordered list of Steps. Each Step
// is bound to one target application and carries the operation to perform, an optional
// pre-flight validator and an optional key under which its output is stored for later
// steps.
//
// The Workflow owns an apps.Set for the run. Every application the steps reference is
// initialized before the first step runs, and exactly one application is in the
// foreground at a time. Surfaces opened for the run are released when Execute returns,
// whatever the outcome.
//
// # State
//
// A run moves through the states
//
//	NotStarted -> Running -> Completed | Failed | Cancelled
//
// and never moves backwards. The State records one sealed StepResult per attempted
// step, every failure in the order it occurred and the data passed between steps.
// State returns a deep copy, so callers can snapshot it while the run is in progress.
//
// # Failure Handling
//
// A failed step is retried up to WithRetryFailedSteps times, waiting WithRetryDelay
// between attempts. Each attempt is bounded by the step's Timeout and by the
// workflow-wide WithTimeout. When a step exhausts its attempts the run aborts unless
// WithContinueOnError is set, in which case the failure is recorded and the run moves
// on. A run that recorded any failure ends Failed.
//
// When a Capturer is configured, a diagnostic artifact is captured for every failed
// step. Capture failures are logged and never replace the step's own error.
//
// # Example
//
//	def := workflow.Define("checkout",
//		workflow.Step{
//			Name:        "create user",
//			Application: "admin",
//			StoreAs:     "user_id",
//			Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
//				return createUser(ctx, wc)
//			},
//		},
//		workflow.Step{
//			Name:        "log in",
//			Application: "web",
//			Run: func(ctx context.Context, wc *workflow.Context) (any, error) {
//				id, _ := workflow.DataAs[string](wc, "user_id")
//				return nil, logIn(ctx, wc, id)
//			},
//		},
//	)
//
//	wf, err := workflow.New(def, cfg, opener, workflow.WithRetryFailedSteps(2))
//	if err != nil {
//		return err
//	}
//	state, err := wf.Execute(ctx)
package workflow
