package workflow

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/progress"
)

// Context is the live context of one workflow run. Step operations and validators
// receive it and use it to reach application surfaces, pass data forward and report
// progress. All methods are safe for concurrent use.
type Context struct {
	id         RunID
	name       string
	startTime  time.Time
	apps       *apps.Set
	statusLine *progress.StatusLine

	mu         sync.RWMutex
	state      State
	metadata   map[string]any
	stepLogger *slog.Logger
}

func newContext(id RunID, name string, set *apps.Set, totalSteps int, logger *slog.Logger) *Context {
	return &Context{
		id:        id,
		name:      name,
		startTime: time.Now(),
		apps:      set,
		state: State{
			TotalSteps: totalSteps,
			Data:       make(map[string]any),
			Status:     NotStarted,
		},
		metadata:   make(map[string]any),
		stepLogger: logger,
	}
}

// ID returns the run ID.
func (c *Context) ID() RunID {
	return c.id
}

// Name returns the workflow name.
func (c *Context) Name() string {
	return c.name
}

// StartTime returns when the context was created.
func (c *Context) StartTime() time.Time {
	return c.startTime
}

// CurrentApplication returns the name of the application currently in the foreground.
func (c *Context) CurrentApplication() string {
	return c.apps.Current()
}

// Surface returns the surface of an application used by this workflow.
func (c *Context) Surface(app string) (apps.Surface, error) {
	return c.apps.Get(app)
}

// Active returns the surface of the current application.
func (c *Context) Active() (apps.Surface, error) {
	return c.apps.Get(c.apps.Current())
}

// API returns the API handle of an application used by this workflow.
func (c *Context) API(app string) (*apps.API, error) {
	return c.apps.API(app)
}

// Logger returns the logger for the step being executed.
func (c *Context) Logger() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stepLogger
}

// SetStatus reports what the workflow is doing right now.
func (c *Context) SetStatus(status string) {
	c.statusLine.Set(status)
}

// Data returns a value stored by an earlier step.
func (c *Context) Data(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state.Data[key]
	return v, ok
}

// SetData stores a value for later steps.
func (c *Context) SetData(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Data[key] = value
}

// Metadata returns a metadata value.
func (c *Context) Metadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// SetMetadata stores a metadata value.
func (c *Context) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// State returns a copy of the run's state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// DataAs returns a stored value converted to T. The second result is false if the key
// is missing or holds a value of another type.
func DataAs[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Data(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// detached returns a copy whose state and metadata are independent of c. Validators
// run against it so that Validate cannot mutate the run.
func (c *Context) detached() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Context{
		id:         c.id,
		name:       c.name,
		startTime:  c.startTime,
		apps:       c.apps,
		state:      c.state.Clone(),
		metadata:   maps.Clone(c.metadata),
		stepLogger: c.stepLogger,
	}
}

func (c *Context) update(f func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.state)
}

func (c *Context) setStepLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepLogger = logger
}

func (c *Context) setCurrentStep(step int) {
	c.update(func(s *State) {
		if step > s.CurrentStep {
			s.CurrentStep = step
		}
	})
}

func (c *Context) appendResult(r StepResult) {
	c.update(func(s *State) {
		s.StepResults = append(s.StepResults, r.clone())
	})
}

func (c *Context) appendError(e Error) {
	c.update(func(s *State) {
		s.Errors = append(s.Errors, e)
	})
}

func (c *Context) dataKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.state.Data))
}
