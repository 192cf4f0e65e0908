package progress

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureError(t *testing.T) {
	runID := "20261019T101500.000Z-3f2a9c1e"
	openErr := errors.New("open web: connection refused")

	tests := []struct {
		name       string
		before     string
		err        error
		wantStatus string
	}{
		{"FailureReplacesStatus", "initializing web", openErr, "❌ open web: connection refused"},
		{"SuccessKeepsStatus", "initializing web", nil, "initializing web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewStatusHandler()
			line := NewStatusLine(runID, slog.New(slog.DiscardHandler), handler)

			err := CaptureError(line, func() error {
				line.Set(tt.before)
				return tt.err
			})

			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.wantStatus, handler.Get(runID))
		})
	}

	t.Run("NilLine", func(t *testing.T) {
		assert.ErrorIs(t, CaptureError(nil, func() error { return openErr }), openErr)
	})
}
