// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

// Handler is the body of a scheduled job
type Handler func(ctx context.Context) error

// JobStatus describes a registered job
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	IsRunning   bool       `json:"isRunning"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     Handler
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// Service runs registered jobs. A job never overlaps with itself.
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	jobMu   sync.Mutex // Protects jobs and running
	jobs    map[string]*jobEntry
	running bool
}

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob adds a job on a 5-field cron schedule
func (s *Service) RegisterJob(name, schedule, description string, handler Handler) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}
	cronID, err := s.cron.AddFunc(schedule, func() { s.executeJob(name) })
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// Start begins firing registered jobs
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, cancels running jobs and waits for them
func (s *Service) Stop() error {
	s.jobMu.Lock()
	wasRunning := s.running
	s.running = false
	s.cancel()
	s.jobMu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()

	if wasRunning {
		s.logger.Info().Msg("Scheduler stopped")
	}
	return nil
}

// IsRunning reports whether Start was called and Stop was not
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// TriggerJob runs a job now in the background
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Manually triggering job execution")
	common.SafeGo(s.logger, "scheduler-"+name, func() { s.executeJob(name) })
	return nil
}

// GetJobStatus returns the status of one job
func (s *Service) GetJobStatus(name string) (*JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return s.statusOf(entry), nil
}

// GetAllJobStatuses returns every job keyed by name
func (s *Service) GetAllJobStatuses() map[string]*JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	out := make(map[string]*JobStatus, len(s.jobs))
	for name, entry := range s.jobs {
		out[name] = s.statusOf(entry)
	}
	return out
}

// statusOf must be called with jobMu held
func (s *Service) statusOf(entry *jobEntry) *JobStatus {
	st := &JobStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		IsRunning:   entry.isRunning,
		LastRun:     entry.lastRun,
		LastError:   entry.lastError,
	}
	if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
		st.NextRun = &next
	}
	return st
}

func (s *Service) executeJob(name string) {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists || entry.isRunning || s.ctx.Err() != nil {
		busy := exists && entry.isRunning
		s.jobMu.Unlock()
		if busy {
			s.logger.Warn().Str("job_name", name).Msg("Job still running, skipping this run")
		}
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.wg.Add(1)
	s.jobMu.Unlock()

	start := time.Now()
	s.logger.Info().Str("job_name", name).Msg("Job execution started")

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		finished := time.Now()
		s.jobMu.Lock()
		entry.isRunning = false
		entry.lastRun = &finished
		entry.lastError = ""
		if err != nil {
			entry.lastError = err.Error()
		}
		s.jobMu.Unlock()
		s.wg.Done()

		if err != nil {
			s.logger.Error().Str("job_name", name).Err(err).Dur("duration", time.Since(start)).Msg("Job execution failed")
			return
		}
		s.logger.Info().Str("job_name", name).Dur("duration", time.Since(start)).Msg("Job execution completed")
	}()

	err = handler(s.ctx)
}
