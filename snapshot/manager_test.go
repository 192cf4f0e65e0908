package snapshot

import (
	"testing"
	"time"

	"github.com/nomis52/e2eflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns times one second apart starting at a fixed instant.
func fakeClock() func() time.Time {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func runningState() workflow.State {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return workflow.State{
		CurrentStep: 1,
		TotalSteps:  3,
		Status:      workflow.Running,
		StartedAt:   &started,
		Data:        map[string]any{"user": "alice"},
		StepResults: []workflow.StepResult{
			{Step: 1, Name: "open", Application: "web", Status: workflow.StepCompleted, Attempts: 1},
		},
	}
}

func TestManager_SaveState(t *testing.T) {
	mgr := NewManager(NewMemoryStore(0), WithClock(fakeClock()))

	state := runningState()
	first, err := mgr.SaveState("run-1", "checkout", state)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)

	// Mutating the caller's state must not change the stored snapshot
	state.Data["user"] = "bob"
	state.StepResults[0].Name = "changed"
	state.Status = workflow.Failed
	state.Errors = append(state.Errors, workflow.Error{Step: 2, Message: "boom"})

	second, err := mgr.SaveState("run-1", "checkout", state, WithError("boom"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)

	history := mgr.History("run-1")
	require.Len(t, history, 2, "snapshots are appended, never overwritten")
	assert.Equal(t, "alice", history[0].State.Data["user"])
	assert.Equal(t, "open", history[0].State.StepResults[0].Name)
	assert.Equal(t, workflow.Running, history[0].State.Status)
	assert.Empty(t, history[0].Error)
	assert.Equal(t, "boom", history[1].Error)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))

	// Mutating returned history must not change the store
	history[0].State.Data["user"] = "mallory"
	assert.Equal(t, "alice", mgr.History("run-1")[0].State.Data["user"])
}

func TestManager_Latest(t *testing.T) {
	mgr := NewManager(NewMemoryStore(0))

	_, ok := mgr.Latest("run-1")
	assert.False(t, ok)

	_, err := mgr.SaveState("run-1", "checkout", runningState())
	require.NoError(t, err)
	done := runningState()
	done.Status = workflow.Completed
	_, err = mgr.SaveState("run-1", "checkout", done)
	require.NoError(t, err)
	_, err = mgr.SaveState("run-2", "refund", runningState())
	require.NoError(t, err)

	latest, ok := mgr.Latest("run-1")
	require.True(t, ok)
	assert.Equal(t, workflow.Completed, latest.State.Status)
	assert.Equal(t, []string{"run-1", "run-2"}, mgr.IDs())
}

func TestManager_Metrics(t *testing.T) {
	mgr := NewManager(NewMemoryStore(0), WithClock(fakeClock()))

	_, err := mgr.Metrics("run-1")
	require.ErrorIs(t, err, ErrNotFound)

	t.Run("FromSnapshots", func(t *testing.T) {
		_, err := mgr.SaveState("run-1", "checkout", runningState())
		require.NoError(t, err)
		_, err = mgr.SaveState("run-1", "checkout", runningState())
		require.NoError(t, err)

		m, err := mgr.Metrics("run-1")
		require.NoError(t, err)
		assert.Equal(t, 2, m.Snapshots)
		assert.Equal(t, time.Second, m.Duration, "unfinished runs use the snapshot span")
		assert.Equal(t, StepCounts{Completed: 1, Pending: 2}, m.StepCounts)
		assert.Equal(t, 1, m.First.Seq)
		assert.Equal(t, 2, m.Latest.Seq)
	})

	t.Run("FromState", func(t *testing.T) {
		state := runningState()
		ended := state.StartedAt.Add(42 * time.Second)
		state.EndedAt = &ended
		state.Status = workflow.Failed
		state.StepResults = append(state.StepResults, workflow.StepResult{Step: 2, Status: workflow.StepFailed})
		_, err := mgr.SaveState("run-2", "checkout", state)
		require.NoError(t, err)

		m, err := mgr.Metrics("run-2")
		require.NoError(t, err)
		assert.Equal(t, 42*time.Second, m.Duration)
		assert.Equal(t, StepCounts{Completed: 1, Failed: 1, Pending: 1}, m.StepCounts)
		assert.Equal(t, "checkout", m.Name)
	})
}

func TestManager_Summaries(t *testing.T) {
	mgr := NewManager(NewMemoryStore(0))
	_, err := mgr.SaveState("run-1", "checkout", runningState())
	require.NoError(t, err)
	failed := runningState()
	failed.Status = workflow.Failed
	failed.Errors = []workflow.Error{{Step: 2, Message: "boom"}}
	_, err = mgr.SaveState("run-2", "refund", failed, WithError("boom"))
	require.NoError(t, err)

	summaries := mgr.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "run-2", summaries[0].WorkflowID, "most recent first")
	assert.Equal(t, workflow.Failed, summaries[0].Status)
	assert.Equal(t, 1, summaries[0].Errors)
	assert.Equal(t, "boom", summaries[0].Error)
	assert.Equal(t, "run-1", summaries[1].WorkflowID)
}

func TestMemoryStore_MaxCount(t *testing.T) {
	store := NewMemoryStore(2)
	for range 5 {
		_, err := store.Append(Snapshot{WorkflowID: "run-1"})
		require.NoError(t, err)
	}
	history := store.History("run-1")
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[0].Seq)
	assert.Equal(t, 5, history[1].Seq)
}
