package handlers

import "net/http"

// NewHealthHandler returns a liveness check. It answers "ok" once a configuration is
// loaded and 503 otherwise.
func NewHealthHandler(provider ConfigProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if provider.Config() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no configuration loaded"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
