// Package scraper runs authenticated job searches and reconciles the results
// with stored job records.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/platforms"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/metrics"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
)

// SearchParams selects what to search for. URL, when set, is navigated to as-is.
type SearchParams struct {
	Query     string   `json:"query"`
	Roles     []string `json:"roles"`
	Locations []string `json:"locations"`
	URL       string   `json:"url" validate:"omitempty,url"`
}

// ScrapeResult lists the eligible jobs found by one scrape
type ScrapeResult struct {
	Total int                 `json:"total"`
	Data  []*models.JobRecord `json:"data"`
}

// Timing holds per-platform scrape bounds
type Timing struct {
	SettleDelay         time.Duration
	ResultsTimeout      time.Duration
	ScrollDelay         time.Duration
	NavigationTimeout   time.Duration
	MaxScrollIterations int
}

// TimingsFromConfig reads the platform config sections
func TimingsFromConfig(cfg *common.Config) map[models.Platform]Timing {
	out := make(map[models.Platform]Timing)
	for _, p := range models.AllPlatforms() {
		pc, _ := cfg.Platforms.Get(string(p))
		out[p] = Timing{
			SettleDelay:         common.Duration(pc.SettleDelay, 3*time.Second),
			ResultsTimeout:      common.Duration(pc.ResultsTimeout, 20*time.Second),
			ScrollDelay:         common.Duration(pc.ScrollDelay, 2*time.Second),
			NavigationTimeout:   common.Duration(pc.NavigationTimeout, 45*time.Second),
			MaxScrollIterations: pc.MaxScrollIterations,
		}
	}
	return out
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithEligibility overrides the direct-apply predicate for a platform
func WithEligibility(platform models.Platform, pred platforms.EligibilityPredicate) Option {
	return func(p *Pipeline) { p.eligibility[platform] = pred }
}

// WithClock sets the clock used for ScrapedAt
func WithClock(clock common.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// Pipeline scrapes one platform search per call
type Pipeline struct {
	registry    *browser.Registry
	sessions    *sessions.Store
	jobs        interfaces.JobStorage
	events      interfaces.EventService
	timings     map[models.Platform]Timing
	eligibility map[models.Platform]platforms.EligibilityPredicate
	clock       common.Clock
	logger      arbor.ILogger
}

// NewPipeline creates a scraper. events may be nil.
func NewPipeline(registry *browser.Registry, store *sessions.Store, jobs interfaces.JobStorage, events interfaces.EventService, timings map[models.Platform]Timing, logger arbor.ILogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:    registry,
		sessions:    store,
		jobs:        jobs,
		events:      events,
		timings:     timings,
		eligibility: make(map[models.Platform]platforms.EligibilityPredicate),
		clock:       common.SystemClock,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scrape runs one search with the user's stored session. Missing or expired
// sessions fail with common.ErrSessionExpired before a browser is started.
// A results page without cards returns an empty result and leaves stored
// jobs untouched.
func (p *Pipeline) Scrape(ctx context.Context, userID string, platform models.Platform, params SearchParams) (result *ScrapeResult, err error) {
	profile, err := platforms.Get(platform)
	if err != nil {
		return nil, err
	}
	logger := p.logger.WithCorrelationId(uuid.New().String())
	started := time.Now()
	defer func() {
		outcome := "ok"
		stored := 0
		if err != nil {
			outcome = "error"
		} else {
			stored = result.Total
		}
		metrics.ScrapeRun(string(platform), outcome, stored, time.Since(started))
	}()

	cred, err := p.sessions.Credential(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	key := browser.Key{UserID: userID, Platform: platform}
	lease, err := browser.AcquireWithRetry(ctx, p.registry, key, cred.Cookies, logger)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	timing := p.timing(platform)
	page := lease.Page()

	target := params.URL
	if target == "" {
		target = profile.SearchURL(platforms.SearchQuery{
			Keywords:  params.Query,
			Roles:     params.Roles,
			Locations: params.Locations,
		})
	}

	logger.Info().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Str("url", target).
		Msg("Scrape started")

	navCtx, cancel := context.WithTimeout(ctx, timing.NavigationTimeout)
	err = page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open search page: %v", common.ErrResource, err)
	}

	if err := common.Sleep(ctx, timing.SettleDelay); err != nil {
		return nil, err
	}

	if landed, err := page.URL(ctx); err == nil && profile.RequiresLogin(landed) {
		logger.Warn().Str("url", landed).Msg("Search redirected to login")
		return nil, fmt.Errorf("%w: %s redirected to login", common.ErrSessionExpired, platform)
	}

	found, err := page.WaitVisible(ctx, profile.CardSelector, timing.ResultsTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: wait for results: %v", common.ErrResource, err)
	}
	if !found {
		logger.Info().Msg("No result cards found")
		return &ScrapeResult{Total: 0, Data: []*models.JobRecord{}}, nil
	}

	if err := p.grow(ctx, page, timing, logger); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot results: %v", common.ErrResource, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	now := p.clock.Now()
	all := profile.Extract(doc, p.eligibility[platform])
	eligible := make([]*models.JobRecord, 0, len(all))
	for _, job := range all {
		if !job.DirectApplyEligible {
			continue
		}
		job.OwnerUserID = userID
		job.ScrapedAt = now
		job.ID = models.JobID(userID, platform, job.PlatformJobID)
		eligible = append(eligible, job)
	}

	inserted, err := p.jobs.ReplaceUnapplied(ctx, userID, platform, eligible)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Int("cards", len(all)).
		Int("eligible", len(eligible)).
		Int("inserted", inserted).
		Dur("took", time.Since(started)).
		Msg("Scrape finished")

	p.publish(userID, platform, len(eligible), inserted)
	return &ScrapeResult{Total: len(eligible), Data: eligible}, nil
}

// grow scrolls until the page height stops changing, then returns to the top
func (p *Pipeline) grow(ctx context.Context, page browser.Page, timing Timing, logger arbor.ILogger) error {
	scrolls := 0
	for scrolls < timing.MaxScrollIterations {
		before, err := page.ScrollHeight(ctx)
		if err != nil {
			break
		}
		if err := page.ScrollToBottom(ctx); err != nil {
			break
		}
		scrolls++
		if err := common.Sleep(ctx, timing.ScrollDelay); err != nil {
			return err
		}
		after, err := page.ScrollHeight(ctx)
		if err != nil || after == before {
			break
		}
	}
	logger.Debug().Int("scrolls", scrolls).Msg("Results page grown")

	if err := page.ScrollToTop(ctx); err != nil && ctx.Err() == nil {
		logger.Debug().Err(err).Msg("Scroll to top failed")
	}
	return common.Sleep(ctx, timing.ScrollDelay)
}

func (p *Pipeline) timing(platform models.Platform) Timing {
	t := p.timings[platform]
	if t.MaxScrollIterations < 1 {
		t.MaxScrollIterations = 1
	}
	if t.NavigationTimeout <= 0 {
		t.NavigationTimeout = 45 * time.Second
	}
	return t
}

func (p *Pipeline) publish(userID string, platform models.Platform, total, inserted int) {
	if p.events == nil {
		return
	}
	_ = p.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventScrapeFinished,
		Payload: map[string]interface{}{
			"user_id":  userID,
			"platform": string(platform),
			"total":    total,
			"inserted": inserted,
		},
	})
}
