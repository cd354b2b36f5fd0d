package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/models"
)

var displayNames = map[models.Platform]string{
	models.PlatformNaukri:   "Naukri",
	models.PlatformLinkedIn: "LinkedIn",
}

// ConnectionHandler serves the login capture endpoints
type ConnectionHandler struct {
	capture CaptureService
	logger  arbor.ILogger
}

func NewConnectionHandler(capture CaptureService, logger arbor.ILogger) *ConnectionHandler {
	return &ConnectionHandler{capture: capture, logger: logger}
}

// ConnectHandler opens the platform login page and starts watching for a login.
// POST /api/connect/{platform}
func (h *ConnectionHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	platform, ok := platformParam(w, r)
	if !ok {
		return
	}

	if err := h.capture.Start(r.Context(), userID, platform); err != nil {
		writeServiceError(w, h.logger, err, "Failed to start login capture")
		return
	}

	h.logger.Info().Str("user_id", userID).Str("platform", string(platform)).Msg("Connection started, monitoring for login")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"monitoring": true,
		"message":    "Browser opened. Please log in to " + displayNames[platform] + ". Your session will be captured automatically once you log in.",
	})
}

// StatusHandler reports whether the user is connected.
// GET /api/status/{platform}
func (h *ConnectionHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	platform, ok := platformParam(w, r)
	if !ok {
		return
	}

	status, err := h.capture.Status(r.Context(), userID, platform)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to read connection status")
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// DisconnectHandler removes the stored session and stops any capture.
// DELETE /api/status/{platform}
func (h *ConnectionHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	platform, ok := platformParam(w, r)
	if !ok {
		return
	}

	if err := h.capture.Disconnect(r.Context(), userID, platform); err != nil {
		writeServiceError(w, h.logger, err, "Failed to disconnect")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"connected": false,
		"message":   displayNames[platform] + " disconnected",
	})
}

// CaptureHandler forces an immediate login check for a running capture.
// POST /api/capture/{platform}
func (h *ConnectionHandler) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	platform, ok := platformParam(w, r)
	if !ok {
		return
	}

	if err := h.capture.CaptureNow(userID, platform); err != nil {
		writeServiceError(w, h.logger, err, "Failed to trigger capture")
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"monitoring": true,
		"message":    "Checking for login",
	})
}
