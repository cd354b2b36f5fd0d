package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

type APIHandler struct {
	browsers BrowserCounter
	logger   arbor.ILogger
}

func NewAPIHandler(browsers BrowserCounter, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		browsers: browsers,
		logger:   logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status with the number of open browsers
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	browsers := 0
	if h.browsers != nil {
		browsers = h.browsers.Count()
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  common.GetVersion(),
		"browsers": browsers,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
