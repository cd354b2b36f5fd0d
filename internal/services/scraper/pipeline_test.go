package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/browser/browsertest"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
	"github.com/ternarybob/jobpilot/internal/services/sessions/sessionstest"
)

const searchURL = "https://www.naukri.com/go%20developer-jobs?k=go%20developer&l=pune"

type fakeJobs struct {
	mu       sync.Mutex
	calls    int
	replaced []*models.JobRecord
	err      error
}

func (f *fakeJobs) GetJob(context.Context, string) (*models.JobRecord, error) {
	return nil, common.ErrJobNotFound
}
func (f *fakeJobs) ListJobs(context.Context, models.JobFilter) ([]*models.JobRecord, error) {
	return nil, nil
}
func (f *fakeJobs) MarkApplied(context.Context, string) error { return nil }
func (f *fakeJobs) Filters(context.Context, string) (*models.JobFilters, error) {
	return &models.JobFilters{}, nil
}

func (f *fakeJobs) ReplaceUnapplied(_ context.Context, _ string, _ models.Platform, jobs []*models.JobRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.replaced = jobs
	return len(jobs), nil
}

func naukriCards(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="list">`)
	for i := 0; i < n; i++ {
		apply := `<button class="apply-button">Apply</button>`
		if i%2 == 1 {
			apply = `<a class="apply-button" href="https://careers.example.com/x" target="_blank">Apply on company website</a>`
		}
		fmt.Fprintf(&b, `<div class="srp-jobtuple-wrapper">
  <a class="title" href="/job-listings-role-%d/10000%d">Role %d</a>
  <a class="comp-name">Acme %d</a>
  <span class="locWdth">Pune</span>
  %s
</div>`, i, i, i, i, apply)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

type fixture struct {
	pipeline *Pipeline
	registry *browser.Registry
	launcher *browsertest.Launcher
	store    *sessions.Store
	jobs     *fakeJobs
	page     *browsertest.Page
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{jobs: &fakeJobs{}, page: browsertest.NewPage()}
	f.launcher = &browsertest.Launcher{Next: func(browser.Key) *browsertest.Browser {
		return browsertest.NewBrowser(f.page)
	}}
	logger := arbor.NewLogger()
	f.registry = browser.NewRegistry(f.launcher, 2, logger)
	f.store, _ = sessionstest.NewStore(t)
	timings := map[models.Platform]Timing{
		models.PlatformNaukri:   {MaxScrollIterations: 5, NavigationTimeout: time.Second},
		models.PlatformLinkedIn: {MaxScrollIterations: 5, NavigationTimeout: time.Second},
	}
	f.pipeline = NewPipeline(f.registry, f.store, f.jobs, nil, timings, logger, opts...)
	t.Cleanup(f.registry.Shutdown)
	return f
}

func (f *fixture) connect(t *testing.T) {
	sessionstest.Connect(t, f.store, "u1", models.PlatformNaukri,
		[]models.Cookie{{Name: "nauk_at", Value: "v", Domain: ".naukri.com"}}, time.Hour)
}

func TestScrapeWithoutSessionNeverStartsBrowser(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{Roles: []string{"go"}})
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Empty(t, f.launcher.Launched())

	sessionstest.Connect(t, f.store, "u1", models.PlatformNaukri, nil, -time.Minute)
	_, err = f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{})
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Empty(t, f.launcher.Launched())
}

func TestScrapeStoresEligibleJobsInOrder(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Routes[searchURL] = naukriCards(4)
	f.page.SetHeights(1000, 2000, 2000)

	res, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{
		Roles:     []string{"go developer"},
		Locations: []string{"pune"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{searchURL}, f.page.Navigations)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "Role 0", res.Data[0].Title)
	assert.Equal(t, "Role 2", res.Data[1].Title)
	for _, job := range res.Data {
		assert.True(t, job.DirectApplyEligible)
		assert.Equal(t, "u1", job.OwnerUserID)
		assert.Equal(t, models.JobID("u1", models.PlatformNaukri, job.PlatformJobID), job.ID)
	}
	assert.Less(t, res.Data[0].Position, res.Data[1].Position)

	assert.Equal(t, 1, f.jobs.calls)
	assert.Len(t, f.jobs.replaced, 2)

	b := f.launcher.Launched()[0]
	require.Len(t, b.Main().SetCookie, 1, "session cookies restored")
	assert.Equal(t, 1, b.CloseCount(), "browser released")
	assert.Equal(t, 0, f.registry.Count())
}

func TestScrapeGrowLoopStopsWhenHeightSettles(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Routes[searchURL] = naukriCards(1)
	f.page.SetHeights(1000, 2000)

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	require.NoError(t, err)
	assert.Equal(t, 2, f.page.Scrolls)
}

func TestScrapeGrowLoopIsCapped(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Routes[searchURL] = naukriCards(1)
	heights := make([]int64, 40)
	for i := range heights {
		heights[i] = int64(i+1) * 1000
	}
	f.page.SetHeights(heights...)

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	require.NoError(t, err)
	assert.Equal(t, 5, f.page.Scrolls)
}

func TestScrapeNoCardsLeavesJobsUntouched(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Routes[searchURL] = `<html><body><p>No jobs found</p></body></html>`

	res, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.Data)
	assert.Equal(t, 0, f.jobs.calls)
	assert.Equal(t, 0, f.registry.Count())
}

func TestScrapeRedirectToLoginIsSessionExpired(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Redirects[searchURL] = "https://www.naukri.com/nlogin/login?URL=x"

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Equal(t, 0, f.jobs.calls)
	assert.Equal(t, 0, f.registry.Count())
}

func TestScrapeNavigationFailureIsResourceError(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	assert.ErrorIs(t, err, common.ErrResource)
	assert.Equal(t, 0, f.registry.Count())
}

func TestScrapeStorageFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.page.Routes[searchURL] = naukriCards(2)
	f.jobs.err = fmt.Errorf("%w: disk full", common.ErrStorage)

	_, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	assert.ErrorIs(t, err, common.ErrStorage)
	assert.Equal(t, 0, f.registry.Count())
}

func TestScrapeWithCustomEligibility(t *testing.T) {
	all := func(*goquery.Selection, *models.JobRecord) bool { return true }
	f := newFixture(t, WithEligibility(models.PlatformNaukri, all))
	f.connect(t)
	f.page.Routes[searchURL] = naukriCards(4)

	res, err := f.pipeline.Scrape(context.Background(), "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
}

func TestScrapeCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Scrape(ctx, "u1", models.PlatformNaukri, SearchParams{URL: searchURL})
	assert.Error(t, err)
	assert.Equal(t, 0, f.registry.Count())
}
