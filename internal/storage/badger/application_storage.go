package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ApplicationStorage implements the ApplicationStorage interface for Badger
type ApplicationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewApplicationStorage creates a new ApplicationStorage instance
func NewApplicationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ApplicationStorage {
	return &ApplicationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ApplicationStorage) GetApplication(ctx context.Context, id string) (*models.ApplicationAttempt, error) {
	var attempt models.ApplicationAttempt
	if err := s.db.Store().Get(id, &attempt); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, storageErr("failed to get application", err)
	}
	return &attempt, nil
}

func (s *ApplicationStorage) SaveApplication(ctx context.Context, attempt *models.ApplicationAttempt) (*models.ApplicationAttempt, error) {
	if attempt.UserID == "" || attempt.JobRef == "" {
		return nil, fmt.Errorf("application user and job are required")
	}
	if _, ok := models.ParseApplicationStatus(string(attempt.Status)); !ok {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrInvalidStatus, attempt.Status)
	}
	attempt.ID = models.ApplicationID(attempt.UserID, attempt.JobRef)

	store := s.db.Store()
	var saved models.ApplicationAttempt
	var transitionErr error

	err := store.Badger().Update(func(tx *badger.Txn) error {
		now := time.Now()
		merged := *attempt

		var existing models.ApplicationAttempt
		err := store.TxGet(tx, attempt.ID, &existing)
		switch {
		case err == nil:
			if !existing.Status.CanTransition(attempt.Status) {
				transitionErr = fmt.Errorf("%w: %s -> %s", common.ErrInvalidStatus, existing.Status, attempt.Status)
				return nil
			}
			merged.CreatedAt = existing.CreatedAt
			merged.Attempts = existing.Attempts
			merged.AppliedAt = existing.AppliedAt
			if merged.Platform == "" {
				merged.Platform = existing.Platform
			}
			if merged.CoverLetter == "" {
				merged.CoverLetter = existing.CoverLetter
			}
			if merged.ResumeUsed == "" {
				merged.ResumeUsed = existing.ResumeUsed
			}
		case errors.Is(err, badgerhold.ErrNotFound):
			merged.CreatedAt = now
			merged.Attempts = 0
		default:
			return err
		}

		if merged.Status.IsTerminal() {
			merged.Attempts++
		}
		if merged.Status == models.ApplicationApplied {
			merged.AppliedAt = &now
			merged.ErrorMessage = ""
		}
		merged.UpdatedAt = now

		if err := store.TxUpsert(tx, merged.ID, &merged); err != nil {
			return err
		}
		saved = merged
		return nil
	})
	if err != nil {
		return nil, storageErr("failed to save application", err)
	}
	if transitionErr != nil {
		return nil, transitionErr
	}
	return &saved, nil
}

// ListApplications returns attempts most recently updated first
func (s *ApplicationStorage) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]*models.ApplicationAttempt, error) {
	var q *badgerhold.Query
	if filter.UserID != "" {
		q = and(q, "UserID", filter.UserID)
	}
	if filter.Status != "" {
		q = and(q, "Status", filter.Status)
	}
	if filter.Platform != "" {
		q = and(q, "Platform", filter.Platform)
	}

	var attempts []models.ApplicationAttempt
	if err := s.db.Store().Find(&attempts, q); err != nil {
		return nil, storageErr("failed to list applications", err)
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].UpdatedAt.After(attempts[j].UpdatedAt)
	})

	result := make([]*models.ApplicationAttempt, len(attempts))
	for i := range attempts {
		result[i] = &attempts[i]
	}
	return result, nil
}

func (s *ApplicationStorage) Stats(ctx context.Context, userID string) (*models.ApplicationStats, error) {
	attempts, err := s.ListApplications(ctx, models.ApplicationFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	stats := &models.ApplicationStats{}
	for _, a := range attempts {
		stats.Add(a.Status)
	}
	return stats, nil
}
