package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return newManagerWithDB(db, arbor.NewLogger())
}

func job(id, title string, pos int) *models.JobRecord {
	return &models.JobRecord{
		PlatformJobID: id,
		Title:         title,
		Company:       "Acme " + id,
		Location:      "Pune",
		Position:      pos,
		ScrapedAt:     time.Now(),
	}
}

func TestSessionUpsertAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	storage := m.SessionStorage()

	got, err := storage.GetSession(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	assert.Nil(t, got, "missing session is nil without error")

	first := &models.Session{
		UserID:              "u1",
		Platform:            models.PlatformNaukri,
		EncryptedCredential: "aa:bb",
		ExpiresAt:           time.Now().Add(time.Hour),
	}
	require.NoError(t, storage.UpsertSession(ctx, first))

	second := &models.Session{
		UserID:              "u1",
		Platform:            models.PlatformNaukri,
		EncryptedCredential: "cc:dd",
		ExpiresAt:           time.Now().Add(2 * time.Hour),
	}
	require.NoError(t, storage.UpsertSession(ctx, second))

	got, err = storage.GetSession(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cc:dd", got.EncryptedCredential)
	assert.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix(), "upsert keeps creation time")

	all, err := storage.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, storage.DeleteSession(ctx, "u1", models.PlatformNaukri))
	require.NoError(t, storage.DeleteSession(ctx, "u1", models.PlatformNaukri), "delete is idempotent")
	got, err = storage.GetSession(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceUnappliedNeverTouchesAppliedJobs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	jobs := m.JobStorage()

	n, err := jobs.ReplaceUnapplied(ctx, "u1", models.PlatformNaukri, []*models.JobRecord{
		job("1", "Go Engineer", 0),
		job("2", "SRE", 1),
		job("3", "Platform Engineer", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, jobs.MarkApplied(ctx, models.JobID("u1", models.PlatformNaukri, "2")))

	// Rescrape returns job 2 again (unapplied) plus a new job 4
	n, err = jobs.ReplaceUnapplied(ctx, "u1", models.PlatformNaukri, []*models.JobRecord{
		job("2", "SRE (reposted)", 0),
		job("4", "Backend Engineer", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "collision with an applied record is skipped")

	all, err := jobs.ListJobs(ctx, models.JobFilter{OwnerUserID: "u1"})
	require.NoError(t, err)

	ids := map[string]*models.JobRecord{}
	for _, j := range all {
		ids[j.PlatformJobID] = j
	}
	assert.Len(t, ids, 2)
	require.Contains(t, ids, "2")
	assert.True(t, ids["2"].Applied)
	assert.Equal(t, "SRE", ids["2"].Title, "applied record unchanged")
	assert.NotNil(t, ids["2"].AppliedAt)
	assert.Contains(t, ids, "4")
	assert.NotContains(t, ids, "1")
	assert.NotContains(t, ids, "3")
}

func TestReplaceUnappliedIsScopedPerUserAndPlatform(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	jobs := m.JobStorage()

	_, err := jobs.ReplaceUnapplied(ctx, "u1", models.PlatformNaukri, []*models.JobRecord{job("1", "A", 0)})
	require.NoError(t, err)
	_, err = jobs.ReplaceUnapplied(ctx, "u1", models.PlatformLinkedIn, []*models.JobRecord{job("9", "B", 0)})
	require.NoError(t, err)
	_, err = jobs.ReplaceUnapplied(ctx, "u2", models.PlatformNaukri, []*models.JobRecord{job("1", "C", 0)})
	require.NoError(t, err)

	// Empty rescrape for u1/naukri clears only that slice
	_, err = jobs.ReplaceUnapplied(ctx, "u1", models.PlatformNaukri, nil)
	require.NoError(t, err)

	u1, err := jobs.ListJobs(ctx, models.JobFilter{OwnerUserID: "u1"})
	require.NoError(t, err)
	require.Len(t, u1, 1)
	assert.Equal(t, models.PlatformLinkedIn, u1[0].Platform)

	u2, err := jobs.ListJobs(ctx, models.JobFilter{OwnerUserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, u2, 1)
}

func TestListJobsFiltersAndOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	jobs := m.JobStorage()

	_, err := jobs.ReplaceUnapplied(ctx, "u1", models.PlatformNaukri, []*models.JobRecord{
		job("b", "second", 1),
		job("a", "first", 0),
		job("c", "third", 2),
	})
	require.NoError(t, err)
	require.NoError(t, jobs.MarkApplied(ctx, models.JobID("u1", models.PlatformNaukri, "c")))

	unapplied := false
	list, err := jobs.ListJobs(ctx, models.JobFilter{OwnerUserID: "u1", Platform: models.PlatformNaukri, Applied: &unapplied})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Title)
	assert.Equal(t, "second", list[1].Title)

	filters, err := jobs.Filters(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pune"}, filters.Locations)
	assert.Len(t, filters.Companies, 3)
}

func TestGetJobNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.JobStorage().GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrJobNotFound)
}

func TestSaveApplicationCountsTerminalWrites(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	apps := m.ApplicationStorage()

	a, err := apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: models.ApplicationQueued})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Attempts)

	a, err = apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: models.ApplicationFailed, ErrorMessage: "boom"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Attempts)
	assert.Equal(t, "boom", a.ErrorMessage)

	// Retry edge
	a, err = apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: models.ApplicationInProgress})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Attempts)

	a, err = apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: models.ApplicationApplied})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Attempts)
	assert.NotNil(t, a.AppliedAt)
	assert.Empty(t, a.ErrorMessage)

	_, err = apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: models.ApplicationQueued})
	assert.ErrorIs(t, err, common.ErrInvalidStatus)

	stored, err := apps.GetApplication(ctx, models.ApplicationID("u1", "j1"))
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApplied, stored.Status)
}

func TestSaveApplicationRejectsUnknownStatus(t *testing.T) {
	m := newTestManager(t)
	_, err := m.ApplicationStorage().SaveApplication(context.Background(),
		&models.ApplicationAttempt{UserID: "u1", JobRef: "j1", Status: "done"})
	assert.ErrorIs(t, err, common.ErrInvalidStatus)
}

func TestApplicationStatsAndFilters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	apps := m.ApplicationStorage()

	for i, st := range []models.ApplicationStatus{
		models.ApplicationApplied, models.ApplicationApplied, models.ApplicationFailed, models.ApplicationReviewNeeded,
	} {
		_, err := apps.SaveApplication(ctx, &models.ApplicationAttempt{
			UserID:   "u1",
			JobRef:   string(rune('a' + i)),
			Platform: models.PlatformNaukri,
			Status:   st,
		})
		require.NoError(t, err)
	}
	_, err := apps.SaveApplication(ctx, &models.ApplicationAttempt{UserID: "u2", JobRef: "x", Status: models.ApplicationApplied})
	require.NoError(t, err)

	stats, err := apps.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ReviewNeeded)
	assert.Equal(t, 4, stats.Total)

	failed, err := apps.ListApplications(ctx, models.ApplicationFilter{UserID: "u1", Status: models.ApplicationFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
