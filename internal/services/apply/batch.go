package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/metrics"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
	"golang.org/x/time/rate"
)

// StatusSkipped marks a job that was already applied to
const StatusSkipped = "skipped"

// JobResult is the outcome for one job in a batch
type JobResult struct {
	JobID   string `json:"jobId"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BatchResult aggregates a batch run
type BatchResult struct {
	Applied int         `json:"applied"`
	Skipped int         `json:"skipped"`
	Total   int         `json:"total"`
	Results []JobResult `json:"results"`
}

// BatchOptions bounds batch runs
type BatchOptions struct {
	MaxBatchSize      int
	DefaultLimit      int
	RatePerMinute     float64
	NavigationTimeout time.Duration
}

// BatchOptionsFromConfig reads the apply config section
func BatchOptionsFromConfig(cfg *common.Config) BatchOptions {
	nav, _ := cfg.Platforms.Get(string(models.PlatformNaukri))
	return BatchOptions{
		MaxBatchSize:      cfg.Apply.MaxBatchSize,
		DefaultLimit:      cfg.Apply.DefaultLimit,
		RatePerMinute:     cfg.Apply.RatePerMinute,
		NavigationTimeout: common.Duration(nav.NavigationTimeout, 45*time.Second),
	}
}

// Coordinator applies to jobs in sequence over one browser per batch
type Coordinator struct {
	registry     *browser.Registry
	sessions     *sessions.Store
	jobs         interfaces.JobStorage
	applications interfaces.ApplicationStorage
	profiles     interfaces.ProfileProvider
	letters      interfaces.CoverLetterWriter
	events       interfaces.EventService
	filler       *Filler
	opts         BatchOptions
	logger       arbor.ILogger
}

// CoordinatorDeps groups the collaborators of a Coordinator. Letters and
// Events may be nil.
type CoordinatorDeps struct {
	Registry     *browser.Registry
	Sessions     *sessions.Store
	Jobs         interfaces.JobStorage
	Applications interfaces.ApplicationStorage
	Profiles     interfaces.ProfileProvider
	Letters      interfaces.CoverLetterWriter
	Events       interfaces.EventService
	Filler       *Filler
}

// NewCoordinator creates a batch coordinator
func NewCoordinator(deps CoordinatorDeps, opts BatchOptions, logger arbor.ILogger) *Coordinator {
	if opts.MaxBatchSize < 1 {
		opts.MaxBatchSize = 25
	}
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 10
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 45 * time.Second
	}
	return &Coordinator{
		registry:     deps.Registry,
		sessions:     deps.Sessions,
		jobs:         deps.Jobs,
		applications: deps.Applications,
		profiles:     deps.Profiles,
		letters:      deps.Letters,
		events:       deps.Events,
		filler:       deps.Filler,
		opts:         opts,
		logger:       logger,
	}
}

// BatchSize clamps a requested limit to the configured bounds
func (c *Coordinator) BatchSize(limit int) int {
	if limit <= 0 {
		limit = c.opts.DefaultLimit
	}
	if limit > c.opts.MaxBatchSize {
		limit = c.opts.MaxBatchSize
	}
	return limit
}

// ApplyBatch applies to the user's unapplied jobs on platform in scrape order
func (c *Coordinator) ApplyBatch(ctx context.Context, userID string, platform models.Platform, limit int) (*BatchResult, error) {
	unapplied := false
	jobs, err := c.jobs.ListJobs(ctx, models.JobFilter{OwnerUserID: userID, Platform: platform, Applied: &unapplied})
	if err != nil {
		return nil, err
	}
	if n := c.BatchSize(limit); len(jobs) > n {
		jobs = jobs[:n]
	}
	return c.run(ctx, userID, platform, jobs)
}

// ApplyOne applies to a single job owned by the user
func (c *Coordinator) ApplyOne(ctx context.Context, userID, jobID string) (*JobResult, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerUserID != userID {
		return nil, fmt.Errorf("%w: %s", common.ErrJobNotFound, jobID)
	}
	if job.Applied {
		return &JobResult{JobID: job.ID, Title: job.Title, Status: StatusSkipped, Message: "Already applied"}, nil
	}
	res, err := c.run(ctx, userID, job.Platform, []*models.JobRecord{job})
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, ctx.Err()
	}
	return &res.Results[0], nil
}

// Queue records queued attempts for jobs the user intends to apply to
func (c *Coordinator) Queue(ctx context.Context, userID string, jobIDs []string) ([]*models.ApplicationAttempt, error) {
	out := make([]*models.ApplicationAttempt, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := c.jobs.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.OwnerUserID != userID {
			return nil, fmt.Errorf("%w: %s", common.ErrJobNotFound, id)
		}
		existing, err := c.applications.GetApplication(ctx, models.ApplicationID(userID, job.ID))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			out = append(out, existing)
			continue
		}
		saved, err := c.applications.SaveApplication(ctx, &models.ApplicationAttempt{
			ID:       models.ApplicationID(userID, job.ID),
			UserID:   userID,
			JobRef:   job.ID,
			Platform: job.Platform,
			Status:   models.ApplicationQueued,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (c *Coordinator) run(ctx context.Context, userID string, platform models.Platform, jobs []*models.JobRecord) (*BatchResult, error) {
	result := &BatchResult{Results: []JobResult{}}
	if len(jobs) == 0 {
		return result, nil
	}

	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred, err := c.sessions.Credential(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithCorrelationId(uuid.New().String())
	lease, err := browser.AcquireWithRetry(ctx, c.registry, browser.Key{UserID: userID, Platform: platform}, cred.Cookies, logger)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/c.opts.RatePerMinute)), 1)
	}

	logger.Info().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Int("jobs", len(jobs)).
		Msg("Apply batch started")

	for _, job := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("Apply batch interrupted")
			break
		}
		res := c.applyJob(ctx, lease, profile, job, logger)
		switch res.Status {
		case string(models.ApplicationApplied):
			result.Applied++
		case StatusSkipped:
			result.Skipped++
		}
		result.Total++
		result.Results = append(result.Results, res)
	}

	logger.Info().
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Int("total", result.Total).
		Msg("Apply batch finished")

	if c.events != nil {
		_ = c.events.Publish(context.Background(), interfaces.Event{
			Type: interfaces.EventBatchFinished,
			Payload: map[string]interface{}{
				"user_id":  userID,
				"platform": string(platform),
				"applied":  result.Applied,
				"total":    result.Total,
			},
		})
	}
	return result, nil
}

// applyJob runs one job in its own tab. Failures and panics become a result.
func (c *Coordinator) applyJob(ctx context.Context, lease *browser.Lease, profile *models.Profile, job *models.JobRecord, logger arbor.ILogger) (res JobResult) {
	res = JobResult{JobID: job.ID, Title: job.Title}
	if job.Applied {
		res.Status = StatusSkipped
		res.Message = "Already applied"
		return res
	}

	attempt := &models.ApplicationAttempt{
		ID:       models.ApplicationID(profile.UserID, job.ID),
		UserID:   profile.UserID,
		JobRef:   job.ID,
		Platform: job.Platform,
		Status:   models.ApplicationInProgress,
	}
	if _, err := c.applications.SaveApplication(ctx, attempt); err != nil {
		if errors.Is(err, common.ErrInvalidStatus) {
			res.Status = StatusSkipped
			res.Message = "Already applied"
			return res
		}
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("Recording attempt start failed")
	}

	applicant := ApplicantFromProfile(profile)
	var outcome FillOutcome
	var fillErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				fillErr = fmt.Errorf("%w: panic: %v", common.ErrFill, r)
			}
		}()
		outcome, fillErr = c.fillInTab(ctx, lease, profile, job, &applicant, logger)
	}()

	status := outcome.Status()
	message := outcome.Message
	if fillErr != nil {
		status = models.ApplicationFailed
		message = failureMessage(fillErr)
	}

	attempt.Status = status
	attempt.ErrorMessage = ""
	if status != models.ApplicationApplied {
		attempt.ErrorMessage = message
	}
	attempt.CoverLetter = applicant.CoverLetter
	attempt.ResumeUsed = applicant.ResumePath
	if _, err := c.applications.SaveApplication(ctx, attempt); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("Recording attempt outcome failed")
	}
	if status == models.ApplicationApplied {
		if err := c.jobs.MarkApplied(ctx, job.ID); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Marking job applied failed")
		}
	}

	metrics.Application(string(job.Platform), string(status))
	logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Str("fields", strings.Join(outcome.FieldsFilled, ",")).
		Msg("Application processed")

	res.Status = string(status)
	res.Message = message
	return res
}

func (c *Coordinator) fillInTab(ctx context.Context, lease *browser.Lease, profile *models.Profile, job *models.JobRecord, applicant *Applicant, logger arbor.ILogger) (FillOutcome, error) {
	page, err := lease.NewPage(ctx)
	if err != nil {
		return FillOutcome{}, err
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavigationTimeout)
	err = page.Navigate(navCtx, job.ApplicationURL)
	cancel()
	if err != nil {
		return FillOutcome{}, fmt.Errorf("%w: open job page: %v", common.ErrResource, err)
	}

	if applicant.CoverLetter == "" && c.letters != nil {
		desc, _ := page.HTML(ctx)
		letter, err := c.letters.Write(ctx, interfaces.CoverLetterRequest{
			Profile:         profile,
			Job:             job,
			DescriptionHTML: desc,
		})
		if err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("Cover letter generation failed")
		} else {
			applicant.CoverLetter = letter.Text
			applicant.CoverLetterPDF = letter.PDFPath
		}
	}

	return c.filler.Fill(ctx, page, job, *applicant)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrSessionExpired):
		return "Session expired. Please reconnect."
	case errors.Is(err, common.ErrFill):
		return "Could not start the application: " + err.Error()
	default:
		return err.Error()
	}
}
