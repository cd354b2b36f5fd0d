package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/scraper"
)

// DailyScrapeJob is the registered name of the fleet scrape
const DailyScrapeJob = "daily-scrape"

// Scraper runs one user's search on a platform
type Scraper interface {
	Scrape(ctx context.Context, userID string, platform models.Platform, params scraper.SearchParams) (*scraper.ScrapeResult, error)
}

// SessionLister lists unexpired sessions
type SessionLister interface {
	ValidSessions(ctx context.Context) ([]*models.Session, error)
}

// ScrapeSummary counts one fleet run
type ScrapeSummary struct {
	Users  int
	Runs   int
	Failed int
	Jobs   int
}

// DailyScrape scrapes fresh listings for every profile that has a valid
// session, one user at a time
type DailyScrape struct {
	profiles interfaces.ProfileProvider
	sessions SessionLister
	scraper  Scraper
	logger   arbor.ILogger
}

// NewDailyScrape creates the fleet scrape job
func NewDailyScrape(profiles interfaces.ProfileProvider, sessions SessionLister, s Scraper, logger arbor.ILogger) *DailyScrape {
	return &DailyScrape{profiles: profiles, sessions: sessions, scraper: s, logger: logger}
}

// Run is the job handler. Per-user failures are logged and do not stop the
// run; only listing profiles or sessions can fail it.
func (d *DailyScrape) Run(ctx context.Context) error {
	_, err := d.RunOnce(ctx)
	return err
}

// RunOnce scrapes every eligible (profile, platform) pair and reports counts
func (d *DailyScrape) RunOnce(ctx context.Context) (*ScrapeSummary, error) {
	logger := d.logger.WithCorrelationId(uuid.New().String())
	logger.Info().Msg("Starting daily job scraping for all users")

	profiles, err := d.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := d.sessions.ValidSessions(ctx)
	if err != nil {
		return nil, err
	}

	connected := make(map[string][]models.Platform, len(sessions))
	for _, s := range sessions {
		connected[s.UserID] = append(connected[s.UserID], s.Platform)
	}

	summary := &ScrapeSummary{}
	for _, profile := range profiles {
		platforms := connected[profile.UserID]
		if len(platforms) == 0 {
			continue
		}
		summary.Users++

		for _, platform := range platforms {
			if ctx.Err() != nil {
				logger.Warn().Msg("Daily job scraping interrupted")
				return summary, nil
			}
			summary.Runs++
			n, err := d.scrapeOne(ctx, profile, platform)
			if err != nil {
				summary.Failed++
				ev := logger.Error()
				if errors.Is(err, common.ErrSessionExpired) {
					ev = logger.Warn()
				}
				ev.Err(err).Str("user_id", profile.UserID).Str("platform", string(platform)).Msg("Failed to scrape jobs for user")
				continue
			}
			summary.Jobs += n
			logger.Info().
				Str("user_id", profile.UserID).
				Str("platform", string(platform)).
				Int("jobs", n).
				Msg("Scraped jobs for user")
		}
	}

	logger.Info().
		Int("users", summary.Users).
		Int("runs", summary.Runs).
		Int("failed", summary.Failed).
		Int("jobs", summary.Jobs).
		Msg("Daily job scraping completed")
	return summary, nil
}

// scrapeOne isolates a panic in one user's scrape from the rest of the run
func (d *DailyScrape) scrapeOne(ctx context.Context, profile *models.Profile, platform models.Platform) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape panicked: %v", r)
		}
	}()
	res, err := d.scraper.Scrape(ctx, profile.UserID, platform, scraper.SearchParams{
		Roles:     profile.PreferredRoles,
		Locations: profile.PreferredLocations,
	})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}
