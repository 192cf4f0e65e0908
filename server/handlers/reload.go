package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadResponse describes the configuration in effect after a reload.
type ReloadResponse struct {
	Applications int      `json:"applications"`
	Suites       []string `json:"suites"`
}

// ReloadHandler re-reads the configuration file. Suites started afterwards use the new
// configuration; runs in progress keep the one they started with.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader ConfigReloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader ConfigReloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger.With("component", "reload"),
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload configuration", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload configuration: %v", err)
		return
	}

	cfg := h.reloader.Config()
	resp := ReloadResponse{
		Applications: len(cfg.Applications),
		Suites:       cfg.SuiteNames(),
	}
	if resp.Suites == nil {
		resp.Suites = []string{}
	}
	h.logger.Info("configuration reloaded", "suites", len(resp.Suites))
	writeJSON(w, http.StatusOK, resp)
}
