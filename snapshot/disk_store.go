package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const lockFile = ".lock"

// DiskStore persists snapshots to disk as JSON files, one directory per workflow run
// and one file per snapshot. Writers in other processes are serialized with a file
// lock in the store directory.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int
	lock     *flock.Flock
	order    []string              // protected by mu
	byID     map[string][]Snapshot // protected by mu
	mu       sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing snapshots are loaded.
// maxCount bounds the snapshots kept per run; 0 keeps everything.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger.With("component", "snapshot"),
		maxCount: maxCount,
		lock:     flock.New(filepath.Join(dir, lockFile)),
		byID:     make(map[string][]Snapshot),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.Reload(); err != nil {
		s.logger.Warn("failed to load existing snapshots", "error", err)
		// Continue without existing data
	}
	return s, nil
}

// Append writes a snapshot to disk and adds it to the in-memory view.
func (s *DiskStore) Append(snap Snapshot) (Snapshot, error) {
	if snap.WorkflowID == "" || strings.ContainsAny(snap.WorkflowID, `/\`) || strings.HasPrefix(snap.WorkflowID, ".") {
		return snap, fmt.Errorf("invalid workflow id %q", snap.WorkflowID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return snap, fmt.Errorf("failed to lock state directory: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to unlock state directory", "error", err)
		}
	}()

	runDir := filepath.Join(s.dir, snap.WorkflowID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return snap, fmt.Errorf("failed to create run directory: %w", err)
	}

	// Another process may have appended since we last looked.
	seqs, err := s.seqs(runDir)
	if err != nil {
		return snap, err
	}
	snap.Seq = 1
	if len(seqs) > 0 {
		snap.Seq = seqs[len(seqs)-1] + 1
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return snap, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(runDir, seqFilename(snap.Seq))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return snap, fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return snap, fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	seqs = append(seqs, snap.Seq)

	// Enforce max count limit
	if s.maxCount > 0 && len(seqs) > s.maxCount {
		for _, seq := range seqs[:len(seqs)-s.maxCount] {
			if err := os.Remove(filepath.Join(runDir, seqFilename(seq))); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove old snapshot", "workflow_id", snap.WorkflowID, "seq", seq, "error", err)
			}
		}
	}

	history, ok := s.byID[snap.WorkflowID]
	if !ok {
		s.order = append(s.order, snap.WorkflowID)
	}
	history = append(history, snap)
	if s.maxCount > 0 && len(history) > s.maxCount {
		history = slices.Clone(history[len(history)-s.maxCount:])
	}
	s.byID[snap.WorkflowID] = history

	s.logger.Debug("saved snapshot to disk", "path", path)
	return snap, nil
}

// History returns the snapshots of a run, oldest first.
func (s *DiskStore) History(id string) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.byID[id])
}

// IDs returns the runs with snapshots, ordered by their first snapshot.
func (s *DiskStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Reload re-loads all snapshots from disk.
func (s *DiskStore) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read state directory: %w", err)
	}

	byID := make(map[string][]Snapshot)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		history := s.loadRun(entry.Name())
		if len(history) == 0 {
			continue
		}
		if s.maxCount > 0 && len(history) > s.maxCount {
			history = history[len(history)-s.maxCount:]
		}
		byID[entry.Name()] = history
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := byID[order[i]][0].Timestamp, byID[order[j]][0].Timestamp
		if a.Equal(b) {
			return order[i] < order[j]
		}
		return a.Before(b)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = byID
	s.order = order

	s.logger.Info("loaded snapshot history from disk", "runs", len(order))
	return nil
}

// loadRun reads the snapshots of one run, skipping unreadable files.
func (s *DiskStore) loadRun(id string) []Snapshot {
	runDir := filepath.Join(s.dir, id)
	seqs, err := s.seqs(runDir)
	if err != nil {
		s.logger.Warn("failed to list run directory", "dir", runDir, "error", err)
		return nil
	}

	history := make([]Snapshot, 0, len(seqs))
	for _, seq := range seqs {
		path := filepath.Join(runDir, seqFilename(seq))
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read snapshot file", "file", path, "error", err)
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("failed to parse snapshot file", "file", path, "error", err)
			continue
		}
		history = append(history, snap)
	}
	return history
}

// seqs returns the snapshot sequence numbers present in a run directory, ascending.
func (s *DiskStore) seqs(runDir string) ([]int, error) {
	files, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory: %w", err)
	}
	var seqs []int
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)
	return seqs, nil
}

func seqFilename(seq int) string {
	return fmt.Sprintf("%06d.json", seq)
}
