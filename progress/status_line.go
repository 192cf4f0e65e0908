package progress

import (
	"log/slog"
)

// StatusLine logs status with run context AND updates the shared handler.
// A StatusLine is bound to a single workflow run.
type StatusLine struct {
	logger  *slog.Logger
	handler *StatusHandler
	runID   string
}

// NewStatusLine creates a status line bound to a run ID.
// The handler parameter is optional - if nil, status updates are only logged.
func NewStatusLine(runID string, logger *slog.Logger, handler *StatusHandler) *StatusLine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusLine{
		logger:  logger,
		handler: handler,
		runID:   runID,
	}
}

// RunID returns the run the line is bound to.
func (sl *StatusLine) RunID() string {
	return sl.runID
}

// Set logs the status with run context and updates the handler if present.
// A nil StatusLine discards the status.
func (sl *StatusLine) Set(status string) {
	if sl == nil {
		return
	}
	sl.logger.Info(status, "run_id", sl.runID)
	if sl.handler != nil {
		sl.handler.Set(sl.runID, status)
	}
}
