package server

import (
	"net/http"

	"github.com/ternarybob/jobpilot/internal/services/metrics"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.app
	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.Middleware(h))
	}

	// Public
	mux.HandleFunc("GET /api/health", a.APIHandler.HealthHandler)
	mux.HandleFunc("GET /api/version", a.APIHandler.VersionHandler)
	if a.Config.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// WebSocket route
	protect("GET /ws", a.WSHandler.HandleWebSocket)

	// Connection and login capture
	protect("POST /api/connect/{platform}", a.ConnectionHandler.ConnectHandler)
	protect("GET /api/status/{platform}", a.ConnectionHandler.StatusHandler)
	protect("DELETE /api/status/{platform}", a.ConnectionHandler.DisconnectHandler)
	protect("POST /api/capture/{platform}", a.ConnectionHandler.CaptureHandler)

	// Scraping and jobs
	protect("POST /api/scrape/{platform}", a.JobHandler.ScrapeHandler)
	protect("GET /api/jobs", a.JobHandler.ListJobsHandler)
	protect("GET /api/jobs/filters", a.JobHandler.FiltersHandler)
	protect("GET /api/jobs/{id}", a.JobHandler.GetJobHandler)
	protect("POST /api/jobs/{id}/apply", a.JobHandler.ApplyHandler)
	protect("POST /api/jobs/auto-apply", a.JobHandler.AutoApplyHandler)

	// Applications
	protect("GET /api/applications", a.ApplicationHandler.ListHandler)
	protect("GET /api/applications/stats", a.ApplicationHandler.StatsHandler)
	protect("PATCH /api/applications/{id}/status", a.ApplicationHandler.UpdateStatusHandler)
	protect("POST /api/applications/batch", a.ApplicationHandler.BatchHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", a.APIHandler.NotFoundHandler)

	return mux
}
