package handlers

import (
	"context"

	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/apply"
	"github.com/ternarybob/jobpilot/internal/services/scraper"
)

// CaptureService runs login captures and answers connection status.
type CaptureService interface {
	Start(ctx context.Context, userID string, platform models.Platform) error
	Status(ctx context.Context, userID string, platform models.Platform) (*models.ConnectionStatus, error)
	CaptureNow(userID string, platform models.Platform) error
	Disconnect(ctx context.Context, userID string, platform models.Platform) error
}

// JobScraper searches a platform with the user's stored session.
type JobScraper interface {
	Scrape(ctx context.Context, userID string, platform models.Platform, params scraper.SearchParams) (*scraper.ScrapeResult, error)
}

// Applier submits applications.
type Applier interface {
	ApplyBatch(ctx context.Context, userID string, platform models.Platform, limit int) (*apply.BatchResult, error)
	ApplyOne(ctx context.Context, userID, jobID string) (*apply.JobResult, error)
	Queue(ctx context.Context, userID string, jobIDs []string) ([]*models.ApplicationAttempt, error)
}

// BrowserCounter reports how many browsers are open.
type BrowserCounter interface {
	Count() int
}
