package handlers

import (
	"net/http"
)

// SuiteInfo describes a configured suite.
type SuiteInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Applications []string `json:"applications"`
	Steps        int      `json:"steps"`
}

// SuitesResponse is the JSON response for /api/suites.
type SuitesResponse struct {
	Suites []SuiteInfo `json:"suites"`
}

// SuitesHandler handles requests for the configured suites.
type SuitesHandler struct {
	configProvider ConfigProvider
}

// NewSuitesHandler creates a new SuitesHandler.
func NewSuitesHandler(provider ConfigProvider) *SuitesHandler {
	return &SuitesHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *SuitesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()

	suites := make([]SuiteInfo, 0, len(cfg.Suites))
	for _, s := range cfg.Suites {
		suites = append(suites, SuiteInfo{
			Name:         s.Name,
			Description:  s.Description,
			Applications: s.Applications(),
			Steps:        len(s.Steps),
		})
	}

	writeJSON(w, http.StatusOK, SuitesResponse{Suites: suites})
}
