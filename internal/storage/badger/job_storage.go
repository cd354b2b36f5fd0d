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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	var job models.JobRecord
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", common.ErrJobNotFound, id)
		}
		return nil, storageErr("failed to get job", err)
	}
	return &job, nil
}

// ListJobs returns jobs newest scrape first, page order within a scrape
func (s *JobStorage) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.JobRecord, error) {
	var q *badgerhold.Query
	if filter.OwnerUserID != "" {
		q = and(q, "OwnerUserID", filter.OwnerUserID)
	}
	if filter.Platform != "" {
		q = and(q, "Platform", filter.Platform)
	}
	if filter.Applied != nil {
		q = and(q, "Applied", *filter.Applied)
	}

	var jobs []models.JobRecord
	if err := s.db.Store().Find(&jobs, q); err != nil {
		return nil, storageErr("failed to list jobs", err)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].ScrapedAt.Equal(jobs[j].ScrapedAt) {
			return jobs[i].ScrapedAt.After(jobs[j].ScrapedAt)
		}
		return jobs[i].Position < jobs[j].Position
	})

	result := make([]*models.JobRecord, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ReplaceUnapplied(ctx context.Context, userID string, platform models.Platform, jobs []*models.JobRecord) (int, error) {
	store := s.db.Store()
	inserted := 0
	skipped := 0

	err := store.Badger().Update(func(tx *badger.Txn) error {
		unapplied := badgerhold.Where("OwnerUserID").Eq(userID).
			And("Platform").Eq(platform).
			And("Applied").Eq(false)
		if err := store.TxDeleteMatching(tx, &models.JobRecord{}, unapplied); err != nil {
			return fmt.Errorf("delete unapplied: %w", err)
		}

		for _, job := range jobs {
			job.OwnerUserID = userID
			job.Platform = platform
			job.ID = models.JobID(userID, platform, job.PlatformJobID)

			var existing models.JobRecord
			err := store.TxGet(tx, job.ID, &existing)
			if err == nil && existing.Applied {
				skipped++
				continue
			}
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("check existing %s: %w", job.ID, err)
			}

			job.Applied = false
			if err := store.TxUpsert(tx, job.ID, job); err != nil {
				return fmt.Errorf("insert %s: %w", job.ID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("failed to replace unapplied jobs", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Int("inserted", inserted).
		Int("skipped_applied", skipped).
		Msg("Replaced unapplied jobs")

	return inserted, nil
}

func (s *JobStorage) MarkApplied(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Applied {
		return nil
	}

	now := time.Now()
	job.Applied = true
	job.AppliedAt = &now
	if err := s.db.Store().Update(id, job); err != nil {
		return storageErr("failed to mark job applied", err)
	}
	return nil
}

func (s *JobStorage) Filters(ctx context.Context, userID string) (*models.JobFilters, error) {
	jobs, err := s.ListJobs(ctx, models.JobFilter{OwnerUserID: userID})
	if err != nil {
		return nil, err
	}

	locations := map[string]bool{}
	companies := map[string]bool{}
	platforms := map[string]bool{}
	for _, job := range jobs {
		if job.Location != "" {
			locations[job.Location] = true
		}
		if job.Company != "" {
			companies[job.Company] = true
		}
		platforms[string(job.Platform)] = true
	}

	return &models.JobFilters{
		Locations: sortedKeys(locations),
		Companies: sortedKeys(companies),
		Platforms: sortedKeys(platforms),
	}, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
