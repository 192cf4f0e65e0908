package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/schedule"
	"github.com/nomis52/e2eflow/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server    types.ServerProperties `json:"server"`
	Active    []runner.ActiveRun     `json:"active"`
	Running   []string               `json:"running"`
	Schedules []schedule.Entry       `json:"schedules"`
	NextRun   NextRunResponse        `json:"next_run"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider StatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider StatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()

	resp := APIStatusResponse{
		Server:    h.provider.Properties(),
		Active:    h.provider.Active(),
		Running:   h.provider.Running(),
		Schedules: h.provider.Schedules(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
	}
	// Encode empty lists as [] rather than null
	if resp.Active == nil {
		resp.Active = []runner.ActiveRun{}
	}
	if resp.Running == nil {
		resp.Running = []string{}
	}
	if resp.Schedules == nil {
		resp.Schedules = []schedule.Entry{}
	}

	writeJSON(w, http.StatusOK, resp)
}
