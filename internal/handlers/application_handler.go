package handlers

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// ApplicationHandler serves application history and queueing
type ApplicationHandler struct {
	applications interfaces.ApplicationStorage
	applier      Applier
	logger       arbor.ILogger
}

func NewApplicationHandler(applications interfaces.ApplicationStorage, applier Applier, logger arbor.ILogger) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, applier: applier, logger: logger}
}

// ListHandler returns the user's application attempts.
// GET /api/applications?status=&platform=&page=&pageSize=
func (h *ApplicationHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter := models.ApplicationFilter{UserID: userID}
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status, ok := models.ParseApplicationStatus(raw)
		if !ok {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	if raw := q.Get("platform"); raw != "" {
		platform, ok := models.ParsePlatform(raw)
		if !ok {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown platform %q", raw))
			return
		}
		filter.Platform = platform
	}

	list, err := h.applications.ListApplications(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list applications")
		return
	}

	page, pageSize := GetPaginationParams(r)
	data, pagination := Paginate(list, page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       data,
		"pagination": pagination,
	})
}

// StatsHandler counts the user's attempts per status.
// GET /api/applications/stats
func (h *ApplicationHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.applications.Stats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load application stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatusHandler moves an attempt forward to a new status.
// PATCH /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, ok := models.ParseApplicationStatus(req.Status)
	if !ok {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	id := r.PathValue("id")
	existing, err := h.applications.GetApplication(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load application")
		return
	}
	if existing == nil || existing.UserID != userID {
		WriteError(w, http.StatusNotFound, "Application not found")
		return
	}

	update := *existing
	update.Status = status
	saved, err := h.applications.SaveApplication(r.Context(), &update)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update application status")
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("application_id", id).
		Str("from", string(existing.Status)).
		Str("to", string(status)).
		Msg("Application status updated")
	WriteJSON(w, http.StatusOK, saved)
}

type batchRequest struct {
	JobIDs []string `json:"jobIds" validate:"required,min=1,max=100,dive,required"`
}

// BatchHandler queues applications for the given jobs.
// POST /api/applications/batch
func (h *ApplicationHandler) BatchHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	queued, err := h.applier.Queue(r.Context(), userID, req.JobIDs)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to queue applications")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": fmt.Sprintf("%d applications queued", len(queued)),
		"data":    queued,
	})
}
