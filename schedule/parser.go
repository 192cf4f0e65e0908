package schedule

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nomis52/e2eflow/config"
)

const (
	triggerSeparator   = ";"
	suiteSeparator     = ":"
	suiteListSeparator = ","
)

// Spec is one schedule: the suites to run and when.
type Spec struct {
	Suites   []string `json:"suites"`
	CronSpec string   `json:"schedule"`
}

// ParseSpecs parses a multi-trigger specification string into individual specs.
// The format is: suite1,suite2:cron_expression;suite3:cron_expression2
//
// Example:
//
//	"signup,checkout:0 2 * * *;smoke:*/15 * * * *"
//
// Returns an error if:
//   - Any trigger is missing suites or cron expression
//   - Any suite name is not in available
//   - Any cron expression is invalid
//   - Any trigger has duplicate suites
func ParseSpecs(spec string, available map[string]bool) ([]Spec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("schedule spec cannot be empty")
	}

	specs := make([]Spec, 0)
	for _, triggerStr := range strings.Split(spec, triggerSeparator) {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue // Skip empty triggers (e.g., trailing semicolon)
		}

		// Split on the first colon; the rest is the cron expression
		suitesStr, cronSpec, ok := strings.Cut(triggerStr, suiteSeparator)
		if !ok {
			return nil, fmt.Errorf("invalid trigger spec: expected format 'suites:cron', got '%s'", triggerStr)
		}
		s, err := newSpec(strings.Split(suitesStr, suiteListSeparator), cronSpec, available)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger spec '%s': %w", triggerStr, err)
		}
		specs = append(specs, s)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in schedule spec")
	}
	return specs, nil
}

// FromConfig converts the configured schedules into specs.
func FromConfig(cfg *config.Config) ([]Spec, error) {
	available := make(map[string]bool)
	for _, name := range cfg.SuiteNames() {
		available[name] = true
	}

	specs := make([]Spec, 0, len(cfg.Schedules))
	for i, sc := range cfg.Schedules {
		s, err := newSpec(sc.Suites, sc.Schedule, available)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i+1, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func newSpec(names []string, cronSpec string, available map[string]bool) (Spec, error) {
	cronSpec = strings.TrimSpace(cronSpec)
	if cronSpec == "" {
		return Spec{}, errors.New("missing cron schedule")
	}

	suites := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue // Skip empty suite names
		}
		if seen[name] {
			return Spec{}, fmt.Errorf("duplicate suite '%s'", name)
		}
		seen[name] = true

		if !available[name] {
			return Spec{}, fmt.Errorf("unknown suite '%s' (available: %s)", name, formatAvailable(available))
		}
		suites = append(suites, name)
	}
	if len(suites) == 0 {
		return Spec{}, errors.New("no suites")
	}

	if _, err := parser.Parse(cronSpec); err != nil {
		return Spec{}, fmt.Errorf("invalid cron expression '%s': %w", cronSpec, err)
	}

	return Spec{Suites: suites, CronSpec: cronSpec}, nil
}

// formatAvailable formats the available suites for error messages.
func formatAvailable(available map[string]bool) string {
	return strings.Join(slices.Sorted(maps.Keys(available)), ", ")
}
