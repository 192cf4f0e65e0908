package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/progress"
)

const (
	defaultRetryDelay     = 2 * time.Second
	defaultTimeout        = 5 * time.Minute
	defaultCaptureTimeout = 15 * time.Second
)

// Definition declares a workflow: its name and its ordered step list.
type Definition interface {
	Name() string
	Steps() []Step
}

// Define returns a Definition for a fixed list of steps.
func Define(name string, steps ...Step) Definition {
	return staticDefinition{name: name, steps: steps}
}

type staticDefinition struct {
	name  string
	steps []Step
}

func (d staticDefinition) Name() string  { return d.name }
func (d staticDefinition) Steps() []Step { return d.steps }

// LoggerFactory derives the logger used while a step runs from the workflow's logger.
// The step key identifies the step within the run, see StepKey.
type LoggerFactory func(base *slog.Logger, runID, step string) *slog.Logger

// StepKey returns the key identifying a step within a run, e.g. "02:login".
func StepKey(step int, name string) string {
	return fmt.Sprintf("%02d:%s", step, name)
}

// Workflow executes a declared list of steps against one or more applications.
// A Workflow runs at most once.
type Workflow struct {
	name   string
	steps  []Step
	set    *apps.Set
	wc     *Context
	logger *slog.Logger

	retryFailedSteps    int
	retryDelay          time.Duration
	continueOnError     bool
	timeout             time.Duration
	screenshotOnSuccess bool
	capturer            Capturer
	loggerFactory       LoggerFactory
	statusLine          *progress.StatusLine
	statusHandler       *progress.StatusHandler
	metadata            map[string]any
	setOpts             []apps.Option

	mu       sync.Mutex
	executed bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRetryFailedSteps sets how many times a failed step is retried. Default 0.
func WithRetryFailedSteps(n int) Option {
	return func(w *Workflow) {
		if n >= 0 {
			w.retryFailedSteps = n
		}
	}
}

// WithRetryDelay sets the wait between attempts of a failed step. Default 2s.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Workflow) {
		w.retryDelay = d
	}
}

// WithContinueOnError records failed steps and moves on instead of aborting.
func WithContinueOnError(continueOnError bool) Option {
	return func(w *Workflow) {
		w.continueOnError = continueOnError
	}
}

// WithTimeout sets the ceiling for the whole run. Default 5m; zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		w.timeout = d
	}
}

// WithScreenshotOnSuccess captures a diagnostic artifact after each completed step.
// Artifacts are always captured for failed steps when a Capturer is set.
func WithScreenshotOnSuccess(enabled bool) Option {
	return func(w *Workflow) {
		w.screenshotOnSuccess = enabled
	}
}

// WithCapturer sets the diagnostic capture collaborator.
func WithCapturer(c Capturer) Option {
	return func(w *Workflow) {
		w.capturer = c
	}
}

// WithPrimary hands the workflow a surface it must use for an application but never
// close.
func WithPrimary(app string, surface apps.Surface) Option {
	return func(w *Workflow) {
		w.setOpts = append(w.setOpts, apps.WithPrimary(app, surface))
	}
}

// WithLogger sets a custom logger for the workflow.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithLoggerFactory sets the factory for per-step loggers.
func WithLoggerFactory(f LoggerFactory) Option {
	return func(w *Workflow) {
		w.loggerFactory = f
	}
}

// WithStatusHandler reports the run's progress to a shared handler.
func WithStatusHandler(h *progress.StatusHandler) Option {
	return func(w *Workflow) {
		w.statusHandler = h
	}
}

// WithMetadata attaches a metadata value to the run's context.
func WithMetadata(key string, value any) Option {
	return func(w *Workflow) {
		w.metadata[key] = value
	}
}

// WithAppOptions passes options to the run's application set.
func WithAppOptions(opts ...apps.Option) Option {
	return func(w *Workflow) {
		w.setOpts = append(w.setOpts, opts...)
	}
}

// New creates a workflow from a definition. The step list is fixed here: every step
// must have a name, an operation and an application the resolver knows about.
func New(def Definition, resolver apps.ConfigResolver, opener apps.Opener, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		name:       def.Name(),
		steps:      slices.Clone(def.Steps()),
		logger:     slog.Default(),
		retryDelay: defaultRetryDelay,
		timeout:    defaultTimeout,
		metadata:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.name == "" {
		return nil, errors.New("workflow name is required")
	}
	if resolver == nil {
		return nil, errors.New("config resolver is required")
	}

	var names []string
	for i, step := range w.steps {
		switch {
		case step.Name == "":
			return nil, fmt.Errorf("step %d: name is required", i+1)
		case step.Run == nil:
			return nil, fmt.Errorf("step %d (%s): operation is required", i+1, step.Name)
		case step.Application == "":
			return nil, fmt.Errorf("step %d (%s): application is required", i+1, step.Name)
		}
		if _, err := resolver.Application(step.Application); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		names = append(names, step.Application)
	}

	id := NewRunID(time.Now())
	runLogger := w.logger.With("workflow", w.name, "run_id", id.String())
	w.logger = runLogger.With("component", "workflow")

	set, err := apps.NewSet(names, resolver, opener, append([]apps.Option{apps.WithLogger(runLogger)}, w.setOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating application set: %w", err)
	}
	w.set = set

	w.wc = newContext(id, w.name, set, len(w.steps), w.logger)
	w.wc.metadata = w.metadata
	if w.statusHandler != nil {
		w.statusLine = progress.NewStatusLine(id.String(), w.logger, w.statusHandler)
		w.wc.statusLine = w.statusLine
	}

	return w, nil
}

// ID returns the run ID.
func (w *Workflow) ID() RunID {
	return w.wc.ID()
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.name
}

// Steps returns a copy of the declared steps.
func (w *Workflow) Steps() []Step {
	return slices.Clone(w.steps)
}

// Context returns the run's live context.
func (w *Workflow) Context() *Context {
	return w.wc
}

// State returns a copy of the current state. It is safe to call during Execute.
func (w *Workflow) State() State {
	return w.wc.State()
}

// Data returns a value from the state's data map.
func (w *Workflow) Data(key string) (any, bool) {
	return w.wc.Data(key)
}

// SetData stores a value in the state's data map.
func (w *Workflow) SetData(key string, value any) {
	w.wc.SetData(key, value)
}

// Validate checks the workflow without running it: every referenced application's
// configuration, a non-empty step list and every step validator. It never modifies
// the run and can be called any number of times.
func (w *Workflow) Validate() ValidationResult {
	var errs []string

	if len(w.steps) == 0 {
		errs = append(errs, "workflow defines no steps")
	}

	for _, name := range w.set.Names() {
		if err := w.set.ValidateConfig(name); err != nil {
			errs = append(errs, err.Error())
		}
	}

	detached := w.wc.detached()
	for i, step := range w.steps {
		if step.Validate == nil {
			continue
		}
		result := runValidator(step, detached)
		if result.Valid {
			continue
		}
		if len(result.Errors) == 0 {
			result.Errors = []string{"validation failed"}
		}
		for _, msg := range result.Errors {
			errs = append(errs, fmt.Sprintf("step %d (%s): %s", i+1, step.Name, msg))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func runValidator(step Step, wc *Context) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Invalid(fmt.Sprintf("validator panicked: %v", r))
		}
	}()
	return step.Validate(wc)
}

// Execute runs the workflow to a terminal state and returns that state.
//
// Applications referenced by the steps are initialized up front. Steps then run in
// declared order; a failed step is retried up to the configured bound. Depending on
// the continue-on-error policy, a step that fails every attempt either aborts the run
// or is recorded and skipped past. Every surface the workflow opened is released
// before Execute returns.
//
// The returned error is a *StepExecutionError when the run aborted on a step, a
// *ConfigurationError when an application could not be initialized, wraps the context
// error when the run was cancelled or timed out, and is nil otherwise. Failures
// absorbed by continue-on-error do not produce an error; the state's status is Failed.
func (w *Workflow) Execute(ctx context.Context) (state State, err error) {
	if !w.start() {
		current := w.State()
		return current, &AlreadyExecutedError{ID: w.ID(), Status: current.Status}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if w.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
	}
	defer cancel()

	now := time.Now()
	w.wc.update(func(s *State) {
		s.Status = Running
		s.StartedAt = &now
	})
	w.logger.Info("workflow started",
		"steps", len(w.steps),
		"applications", w.set.Names(),
		"retry_failed_steps", w.retryFailedSteps,
		"continue_on_error", w.continueOnError,
	)

	defer func() {
		if r := recover(); r != nil {
			err = w.recordPanic(r)
		}
		w.release()
		state, err = w.finish(ctx, err)
	}()

	err = w.run(runCtx)
	return state, err
}

// recordPanic turns a panic on the driver path into a top-level error at the current
// step so the run still ends Failed with its surfaces released.
func (w *Workflow) recordPanic(r any) error {
	err := fmt.Errorf("%w: %v", ErrPanicked, r)
	w.logger.Error("workflow panicked", "error", err, "stack", string(debug.Stack()))
	w.wc.appendError(Error{
		Step:    w.wc.State().CurrentStep,
		Message: err.Error(),
	})
	return err
}

func (w *Workflow) start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.executed {
		return false
	}
	w.executed = true
	return true
}

func (w *Workflow) run(ctx context.Context) error {
	for _, name := range w.set.Names() {
		err := progress.CaptureError(w.statusLine, func() error {
			w.statusLine.Set(fmt.Sprintf("initializing %s", name))
			return w.set.Initialize(ctx, name)
		})
		if err != nil {
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				err = &ConfigurationError{Application: name, Err: err}
			}
			w.logger.Error("application initialization failed", "application", name, "error", err)
			w.wc.appendError(Error{
				Step:        0,
				Message:     err.Error(),
				Application: name,
			})
			return err
		}
	}

	for i, step := range w.steps {
		num := i + 1
		if err := ctx.Err(); err != nil {
			// Top-level: the step that saw the cancellation has already recorded it
			w.wc.appendError(Error{
				Step:    0,
				Message: fmt.Sprintf("workflow interrupted before step %d: %v", num, err),
			})
			return fmt.Errorf("workflow %s interrupted: %w", w.name, err)
		}

		w.wc.setCurrentStep(num)
		if err := w.runStep(ctx, num, step); err != nil && !w.continueOnError {
			return err
		}
	}
	return nil
}

// attempt is the outcome of one try of a step.
type attempt struct {
	output any
	err    error
	start  time.Time
	end    time.Time
}

func (w *Workflow) runStep(ctx context.Context, num int, step Step) error {
	key := StepKey(num, step.Name)
	logger := w.logger
	if w.loggerFactory != nil {
		logger = w.loggerFactory(w.logger, w.wc.ID().String(), key)
	}
	logger = logger.With("step", num, "step_name", step.Name, "application", step.Application)
	w.wc.setStepLogger(logger)
	w.statusLine.Set(fmt.Sprintf("step %d/%d: %s (%s)", num, len(w.steps), step.Name, step.Application))

	start := time.Now()
	var attempts []attempt

	if err := w.set.SwitchTo(ctx, step.Application); err != nil {
		attempts = append(attempts, attempt{err: err, start: start, end: time.Now()})
	} else {
		maxAttempts := 1 + w.retryFailedSteps
		for n := 1; n <= maxAttempts; n++ {
			logger.Debug("step attempt started", "attempt", n, "max_attempts", maxAttempts)
			a := w.attempt(ctx, step)
			attempts = append(attempts, a)
			if a.err == nil {
				break
			}
			logger.Warn("step attempt failed", "attempt", n, "max_attempts", maxAttempts, "error", a.err)
			if n == maxAttempts || ctx.Err() != nil {
				break
			}
			if err := sleep(ctx, w.retryDelay); err != nil {
				break
			}
		}
	}

	last := attempts[len(attempts)-1]
	end := time.Now()
	result := StepResult{
		Step:        num,
		Name:        step.Name,
		Application: step.Application,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Attempts:    len(attempts),
	}

	if last.err == nil {
		result.Status = StepCompleted
		result.Output = last.output
		if step.StoreAs != "" {
			w.wc.SetData(step.StoreAs, last.output)
		}
		if w.screenshotOnSuccess {
			if ref := w.capture(ctx, step, key, "completed"); ref != "" {
				result.Artifacts = append(result.Artifacts, ref)
			}
		}
		w.wc.appendResult(result)
		logger.Info("step completed", "attempts", len(attempts), "duration", result.Duration)
		return nil
	}

	stepErr := &Error{
		Step:        num,
		Message:     last.err.Error(),
		Application: step.Application,
		Detail:      describeAttempts(attempts),
		Recoverable: step.Recoverable,
	}
	if ref := w.capture(ctx, step, key, "failed"); ref != "" {
		stepErr.Artifact = ref
		result.Artifacts = append(result.Artifacts, ref)
	}
	result.Status = StepFailed
	result.Error = stepErr
	w.wc.appendResult(result)
	w.wc.appendError(*stepErr)
	w.statusLine.Set(fmt.Sprintf("❌ step %d/%d: %s: %v", num, len(w.steps), step.Name, last.err))
	logger.Error("step failed", "attempts", len(attempts), "error", last.err, "recoverable", step.Recoverable)

	return &StepExecutionError{
		Step:        num,
		Name:        step.Name,
		Application: step.Application,
		Attempts:    len(attempts),
		Err:         last.err,
	}
}

// attempt runs the step operation once, racing it against the step timeout and the
// run's context. An operation that outlives its deadline is abandoned.
func (w *Workflow) attempt(ctx context.Context, step Step) attempt {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if step.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	a := attempt{start: time.Now()}
	done := make(chan attempt, 1)
	go func() {
		var out attempt
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("step panicked: %v", r)
			}
			done <- out
		}()
		out.output, out.err = step.Run(attemptCtx, w.wc)
	}()

	select {
	case out := <-done:
		a.output, a.err = out.output, out.err
	case <-attemptCtx.Done():
		if ctx.Err() == nil {
			a.err = fmt.Errorf("%w after %s: %w", ErrStepTimeout, step.Timeout, attemptCtx.Err())
		} else {
			a.err = fmt.Errorf("step abandoned: %w", ctx.Err())
		}
	}
	a.end = time.Now()
	return a
}

// capture takes a diagnostic artifact for the step's application. Failures are logged
// and never returned so that they cannot mask the step's own outcome.
func (w *Workflow) capture(ctx context.Context, step Step, key, outcome string) string {
	if w.capturer == nil {
		return ""
	}
	surface, err := w.set.Get(step.Application)
	if err != nil {
		w.logger.Warn("skipping capture", "step", key, "error", err)
		return ""
	}

	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultCaptureTimeout)
	defer cancel()

	label := fmt.Sprintf("%s-%s-%s", w.wc.ID(), strings.ReplaceAll(key, ":", "-"), outcome)
	ref, err := safeCapture(captureCtx, w.capturer, step.Application, surface, label)
	if err != nil {
		w.logger.Warn("diagnostic capture failed", "step", key, "application", step.Application, "error", err)
		return ""
	}
	w.logger.Debug("diagnostic captured", "step", key, "artifact", ref)
	return ref
}

func safeCapture(ctx context.Context, c Capturer, app string, surface apps.Surface, label string) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panicked: %v", r)
		}
	}()
	return c.Capture(ctx, app, surface, label)
}

func (w *Workflow) release() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("releasing application surfaces panicked", "panic", r)
		}
	}()
	if err := w.set.ReleaseAll(); err != nil {
		w.logger.Warn("failed to release application surfaces", "error", err)
	}
}

func (w *Workflow) finish(parent context.Context, err error) (State, error) {
	now := time.Now()
	w.wc.update(func(s *State) {
		switch {
		case err != nil && errors.Is(parent.Err(), context.Canceled):
			s.Status = Cancelled
		case err != nil || len(s.Errors) > 0:
			s.Status = Failed
		default:
			s.Status = Completed
		}
		s.EndedAt = &now
	})

	state := w.State()
	if state.Status == Cancelled && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w (%w)", err, parent.Err())
	}
	switch state.Status {
	case Completed:
		w.statusLine.Set(fmt.Sprintf("✅ completed %d/%d steps", len(state.StepResults), state.TotalSteps))
		w.logger.Info("workflow completed", "duration", state.Duration(), "data_keys", w.wc.dataKeys())
	case Cancelled:
		w.statusLine.Set("cancelled")
		w.logger.Warn("workflow cancelled", "current_step", state.CurrentStep, "error", err)
	default:
		w.statusLine.Set(fmt.Sprintf("❌ failed with %d error(s)", len(state.Errors)))
		w.logger.Error("workflow failed",
			"current_step", state.CurrentStep,
			"errors", len(state.Errors),
			"duration", state.Duration(),
			"error", err,
		)
	}
	return state, err
}

func describeAttempts(attempts []attempt) string {
	lines := make([]string, len(attempts))
	for i, a := range attempts {
		lines[i] = fmt.Sprintf("attempt %d (%s): %v", i+1, a.end.Sub(a.start).Round(time.Millisecond), a.err)
	}
	return strings.Join(lines, "\n")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
