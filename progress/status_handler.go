package progress

import (
	"maps"
	"sync"
)

// StatusHandler stores the latest status message of each workflow run by run ID.
// This is the shared storage that all status lines write to.
type StatusHandler struct {
	statuses map[string]string
	mu       sync.RWMutex
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{
		statuses: make(map[string]string),
	}
}

// Set updates the status for a run.
func (sh *StatusHandler) Set(runID string, status string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.statuses[runID] = status
}

// Get returns the status for a run.
func (sh *StatusHandler) Get(runID string) string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.statuses[runID]
}

// Remove forgets a run.
func (sh *StatusHandler) Remove(runID string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.statuses, runID)
}

// All returns a copy of all run statuses.
func (sh *StatusHandler) All() map[string]string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return maps.Clone(sh.statuses)
}
