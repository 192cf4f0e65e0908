package logging

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time" yaml:"time"`
	Level      string         `json:"level" yaml:"level"` // "DEBUG", "INFO", "WARN", "ERROR"
	Message    string         `json:"message" yaml:"message"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// LogCollector provides thread-safe storage for the logs of workflow steps, grouped by
// run ID and then by step key.
type LogCollector struct {
	mu   sync.RWMutex
	logs map[string]map[string][]LogEntry
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[string]map[string][]LogEntry),
	}
}

// AddLog adds a log entry for a step of a run.
func (c *LogCollector) AddLog(runID, step string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps, ok := c.logs[runID]
	if !ok {
		steps = make(map[string][]LogEntry)
		c.logs[runID] = steps
	}
	steps[step] = append(steps[step], entry)
}

// StepLogs returns a copy of the entries captured for one step.
func (c *LogCollector) StepLogs(runID, step string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs[runID][step])
}

// RunLogs returns a copy of every entry captured for a run, keyed by step.
func (c *LogCollector) RunLogs(runID string) map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps, ok := c.logs[runID]
	if !ok {
		return nil
	}
	result := make(map[string][]LogEntry, len(steps))
	for step, logs := range steps {
		result[step] = slices.Clone(logs)
	}
	return result
}

// Runs returns the run IDs with captured logs, sorted.
func (c *LogCollector) Runs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.logs))
}

// Forget drops the logs of a run.
func (c *LogCollector) Forget(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logs, runID)
}
