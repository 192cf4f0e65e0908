package handlers

import (
	"net/http"
)

// ConfigHandler serves the current configuration with header values redacted. It
// answers in YAML, the format the file is written in, unless the client asks for JSON.
type ConfigHandler struct {
	provider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	redacted := h.provider.Config().Redacted()
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, redacted)
		return
	}
	writeYAML(w, http.StatusOK, redacted)
}
