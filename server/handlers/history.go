package handlers

import (
	"errors"
	"net/http"

	"github.com/nomis52/e2eflow/snapshot"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.Summaries())
}

// RunDetail is the JSON response for a single run.
type RunDetail struct {
	Metrics   snapshot.Metrics    `json:"metrics"`
	Report    snapshot.Report     `json:"report"`
	Snapshots []snapshot.Snapshot `json:"snapshots"`
}

// RunDetailHandler handles requests for the snapshots of a specific run.
type RunDetailHandler struct {
	provider HistoryProvider
}

// NewRunDetailHandler creates a new RunDetailHandler.
func NewRunDetailHandler(provider HistoryProvider) *RunDetailHandler {
	return &RunDetailHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	m, err := h.provider.Metrics(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, snapshot.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "%v", err)
		return
	}

	report := snapshot.GenerateReport(m.Latest.State)
	report.RunID = id
	report.Workflow = m.Name

	writeJSON(w, http.StatusOK, RunDetail{
		Metrics:   m,
		Report:    report,
		Snapshots: h.provider.History(id),
	})
}
