package workflows

import (
	"errors"
	"fmt"

	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/workflow"
)

// ErrUnknownSuite is returned when a suite name is not in the configuration.
var ErrUnknownSuite = errors.New("unknown suite")

// suiteDefinition adapts a configured suite to workflow.Definition.
type suiteDefinition struct {
	name  string
	steps []workflow.Step
}

func (d suiteDefinition) Name() string           { return d.name }
func (d suiteDefinition) Steps() []workflow.Step { return d.steps }

// NewSuite creates a workflow from a configured suite.
func NewSuite(p Params, suite config.SuiteConfig) (*workflow.Workflow, error) {
	if p.Config == nil {
		return nil, errors.New("no configuration available")
	}

	def := suiteDefinition{name: suite.Name}
	stored := make(map[string]bool)
	for i, sc := range suite.Steps {
		step, err := p.newStep(sc, stored)
		if err != nil {
			return nil, fmt.Errorf("suite %s: step %d (%s): %w", suite.Name, i+1, sc.Name, err)
		}
		def.steps = append(def.steps, step)
		if sc.StoreAs != "" {
			stored[sc.StoreAs] = true
		}
	}

	wf, err := workflow.New(def, p.Config, p.Opener, p.options(suite)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow for suite %s: %w", suite.Name, err)
	}
	return wf, nil
}

// NewSuites creates workflows for the named suites, in the given order. With no names,
// every configured suite is created.
func NewSuites(p Params, names []string) ([]*workflow.Workflow, error) {
	if p.Config == nil {
		return nil, errors.New("no configuration available")
	}
	if len(names) == 0 {
		names = p.Config.SuiteNames()
	}

	wfs := make([]*workflow.Workflow, 0, len(names))
	for _, name := range names {
		suite, ok := p.Config.Suite(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSuite, name)
		}
		wf, err := NewSuite(p, suite)
		if err != nil {
			return nil, err
		}
		wfs = append(wfs, wf)
	}
	return wfs, nil
}
