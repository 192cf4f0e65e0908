package schedule

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error

	mu     sync.Mutex
	suites [][]string
}

func (m *mockRunnable) RunSuites(ctx context.Context, suites []string) error {
	m.runCount.Add(1)
	m.mu.Lock()
	m.suites = append(m.suites, suites)
	m.mu.Unlock()
	return m.runErr
}

func (m *mockRunnable) Suites() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.suites...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every hour", spec: "0 * * * *"},
		{name: "every minute", spec: "* * * * *"},
		{name: "descriptor", spec: "@daily"},
		{name: "every interval", spec: "@every 90s"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "invalid value", spec: "60 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.spec, func(ctx context.Context) error { return nil }, testLogger())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.spec, trigger.Spec())
			}
		})
	}
}

func TestTrigger_NextRun(t *testing.T) {
	trigger, err := NewTrigger("0 2 * * *", func(ctx context.Context) error { return nil }, testLogger())
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour(), "next run should be at 2am")
	assert.Equal(t, 0, nextRun.Minute(), "next run should be at minute 0")
}

func TestTrigger_Fires(t *testing.T) {
	var runs atomic.Int32
	trigger, err := NewTrigger("@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("errors are logged, not fatal")
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond,
		"the trigger keeps firing after a failed run")
}

func TestTrigger_Start_CancellationStopsLoop(t *testing.T) {
	runnable := &mockRunnable{}
	trigger, err := NewTrigger("* * * * *", func(ctx context.Context) error {
		return runnable.RunSuites(ctx, []string{"smoke"})
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	// Run count should be 0 since we cancelled before the first scheduled run
	assert.Equal(t, int32(0), runnable.runCount.Load())
}
