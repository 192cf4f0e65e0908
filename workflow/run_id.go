package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDTimeFormat = "20060102T150405.000Z"

// RunID identifies one workflow instance. It combines the UTC creation time with a
// random suffix so that IDs sort chronologically and never collide between workflows
// created in the same millisecond.
//
// Example: "20261019T101500.123Z-3f2a9c1e"
type RunID string

// NewRunID returns a RunID for a workflow created at t.
func NewRunID(t time.Time) RunID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return RunID(fmt.Sprintf("%s-%s", t.UTC().Format(runIDTimeFormat), suffix))
}

// String returns the ID as a string.
func (id RunID) String() string {
	return string(id)
}

// Time returns the creation time encoded in the ID.
func (id RunID) Time() (time.Time, error) {
	ts, _, ok := strings.Cut(string(id), "-")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed run id %q", string(id))
	}
	return time.Parse(runIDTimeFormat, ts)
}

// Suffix returns the random part of the ID.
func (id RunID) Suffix() string {
	_, suffix, _ := strings.Cut(string(id), "-")
	return suffix
}

// IsValid returns true if the ID has both a parseable timestamp and a suffix.
func (id RunID) IsValid() bool {
	if _, err := id.Time(); err != nil {
		return false
	}
	return id.Suffix() != ""
}
