package interfaces

import (
	"context"

	"github.com/ternarybob/jobpilot/internal/models"
)

// SessionStorage persists one encrypted session per (user, platform)
type SessionStorage interface {
	// GetSession returns nil, nil when no session exists
	GetSession(ctx context.Context, userID string, platform models.Platform) (*models.Session, error)
	UpsertSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, userID string, platform models.Platform) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// JobStorage persists scraped job records
type JobStorage interface {
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.JobRecord, error)

	// ReplaceUnapplied deletes the user's unapplied jobs for the platform and
	// inserts jobs. Applied records are never modified or removed; incoming
	// records that collide with an applied record are skipped.
	// Returns the number of records inserted.
	ReplaceUnapplied(ctx context.Context, userID string, platform models.Platform, jobs []*models.JobRecord) (int, error)

	MarkApplied(ctx context.Context, id string) error
	Filters(ctx context.Context, userID string) (*models.JobFilters, error)
}

// ApplicationStorage persists application attempts
type ApplicationStorage interface {
	GetApplication(ctx context.Context, id string) (*models.ApplicationAttempt, error)
	// SaveApplication upserts an attempt, enforcing forward-only status
	// transitions and incrementing Attempts on terminal writes.
	SaveApplication(ctx context.Context, attempt *models.ApplicationAttempt) (*models.ApplicationAttempt, error)
	ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]*models.ApplicationAttempt, error)
	Stats(ctx context.Context, userID string) (*models.ApplicationStats, error)
}

// StorageManager - interface for managing all storage backends
type StorageManager interface {
	SessionStorage() SessionStorage
	JobStorage() JobStorage
	ApplicationStorage() ApplicationStorage
	Close() error
}
