package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/scraper"
)

// JobHandler serves scraping, job listing and apply endpoints
type JobHandler struct {
	scraper  JobScraper
	applier  Applier
	jobs     interfaces.JobStorage
	profiles interfaces.ProfileProvider
	logger   arbor.ILogger
}

func NewJobHandler(s JobScraper, applier Applier, jobs interfaces.JobStorage, profiles interfaces.ProfileProvider, logger arbor.ILogger) *JobHandler {
	return &JobHandler{scraper: s, applier: applier, jobs: jobs, profiles: profiles, logger: logger}
}

// ScrapeHandler searches the platform and stores the eligible results.
// An empty body searches with the user's preferred roles and locations.
// POST /api/scrape/{platform}
func (h *JobHandler) ScrapeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	platform, ok := platformParam(w, r)
	if !ok {
		return
	}

	var params scraper.SearchParams
	if err := DecodeJSON(r, &params); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Query == "" && params.URL == "" && len(params.Roles) == 0 && h.profiles != nil {
		if profile, err := h.profiles.GetProfile(r.Context(), userID); err == nil {
			params.Roles = profile.PreferredRoles
			params.Locations = profile.PreferredLocations
		}
	}

	result, err := h.scraper.Scrape(r.Context(), userID, platform, params)
	if err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			WriteError(w, http.StatusUnauthorized, "Session expired. Please reconnect your "+displayNames[platform]+" account.")
			return
		}
		writeServiceError(w, h.logger, err, "Failed to scrape jobs")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ListJobsHandler returns the user's stored jobs.
// GET /api/jobs?platform=&applied=&page=&pageSize=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter := models.JobFilter{OwnerUserID: userID}
	if raw := r.URL.Query().Get("platform"); raw != "" {
		platform, ok := models.ParsePlatform(raw)
		if !ok {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown platform %q", raw))
			return
		}
		filter.Platform = platform
	}
	applied, err := parseBool(r, "applied")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Applied = applied

	jobs, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list jobs")
		return
	}

	page, pageSize := GetPaginationParams(r)
	data, pagination := Paginate(jobs, page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       data,
		"pagination": pagination,
	})
}

// GetJobHandler returns one of the user's jobs.
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	job, err := h.jobs.GetJob(r.Context(), id)
	if err == nil && job.OwnerUserID != userID {
		err = fmt.Errorf("%w: %s", common.ErrJobNotFound, id)
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get job")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// FiltersHandler returns the distinct locations and companies of the user's jobs.
// GET /api/jobs/filters
func (h *JobHandler) FiltersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	filters, err := h.jobs.Filters(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load job filters")
		return
	}
	WriteJSON(w, http.StatusOK, filters)
}

// ApplyHandler applies to a single job.
// POST /api/jobs/{id}/apply
func (h *JobHandler) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	result, err := h.applier.ApplyOne(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to apply to job")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

type autoApplyRequest struct {
	Limit    int    `json:"limit" validate:"gte=0"`
	Platform string `json:"platform"`
}

// AutoApplyHandler applies to the user's next unapplied jobs.
// POST /api/jobs/auto-apply
func (h *JobHandler) AutoApplyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req autoApplyRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	platform := models.PlatformNaukri
	if req.Platform != "" {
		p, ok := models.ParsePlatform(req.Platform)
		if !ok {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("%v: %q", common.ErrUnknownPlatform, req.Platform))
			return
		}
		platform = p
	}

	result, err := h.applier.ApplyBatch(r.Context(), userID, platform, req.Limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to run auto-apply")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
