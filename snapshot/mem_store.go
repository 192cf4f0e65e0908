package snapshot

import (
	"slices"
	"sync"
)

// MemoryStore keeps snapshots in memory only (no persistence).
type MemoryStore struct {
	maxCount int
	order    []string
	byID     map[string][]Snapshot
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory store. maxCount bounds the snapshots kept per
// run, dropping the oldest; 0 keeps everything.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{
		maxCount: maxCount,
		byID:     make(map[string][]Snapshot),
	}
}

// Append stores a snapshot in memory.
func (s *MemoryStore) Append(snap Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.byID[snap.WorkflowID]
	if !ok {
		s.order = append(s.order, snap.WorkflowID)
	}
	snap.Seq = 1
	if len(history) > 0 {
		snap.Seq = history[len(history)-1].Seq + 1
	}
	history = append(history, snap)
	if s.maxCount > 0 && len(history) > s.maxCount {
		history = slices.Clone(history[len(history)-s.maxCount:])
	}
	s.byID[snap.WorkflowID] = history
	return snap, nil
}

// History returns the snapshots of a run, oldest first.
func (s *MemoryStore) History(id string) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.byID[id])
}

// IDs returns the runs with snapshots in the order they were first saved.
func (s *MemoryStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}
