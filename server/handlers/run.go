package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nomis52/e2eflow/runner"
)

// RunRequest defines the request body for POST /run.
type RunRequest struct {
	Suites []string `json:"suites"`
}

// RunResponse is returned when a run was accepted.
type RunResponse struct {
	Suites []string `json:"suites"`
}

// RunHandler handles requests to trigger a suite run.
type RunHandler struct {
	runner SuiteRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r SuiteRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	if len(req.Suites) == 0 {
		writeError(w, http.StatusBadRequest, "suites array cannot be empty")
		return
	}

	seen := make(map[string]bool, len(req.Suites))
	for _, name := range req.Suites {
		if seen[name] {
			writeError(w, http.StatusBadRequest, "duplicate suite %q in request", name)
			return
		}
		seen[name] = true
	}

	if err := h.runner.StartSuites(req.Suites); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "%v", err)
			return
		}
		// Unknown suite or a suite that could not be built
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{Suites: req.Suites})
}
