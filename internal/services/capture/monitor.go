// Package capture watches a visible browser while a user logs in to a job
// portal and stores the resulting session cookies.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/platforms"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/detector"
	"github.com/ternarybob/jobpilot/internal/services/metrics"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
)

const (
	msgWaiting   = "Waiting for login..."
	msgCapturing = "Login detected, capturing session..."
	msgConnected = "Connected successfully"
	msgClosed    = "Browser was closed"
	msgTakenOver = "Browser session was taken over"
	msgTimeout   = "Login timeout. Please try again."
	msgCookies   = "Failed to read session cookies"
	msgSave      = "Failed to save session"

	maxOutcomes = 1024
)

// Timing holds per-platform capture bounds
type Timing struct {
	PollInterval      time.Duration
	MaxAttempts       int
	NavigationTimeout time.Duration
}

// Options configures a Monitor
type Options struct {
	FirstCheckDelay  time.Duration
	EarlyCheckDelay  time.Duration
	SessionTTL       time.Duration
	OutcomeRetention time.Duration
	Platforms        map[models.Platform]Timing
}

// OptionsFromConfig converts the capture and platform config sections
func OptionsFromConfig(cfg *common.Config) Options {
	opts := Options{
		FirstCheckDelay:  common.Duration(cfg.Capture.FirstCheckDelay, 2*time.Second),
		EarlyCheckDelay:  common.Duration(cfg.Capture.EarlyCheckDelay, 2*time.Second),
		SessionTTL:       common.Duration(cfg.Capture.SessionTTL, 30*24*time.Hour),
		OutcomeRetention: common.Duration(cfg.Capture.OutcomeRetention, 10*time.Minute),
		Platforms:        make(map[models.Platform]Timing),
	}
	for _, p := range models.AllPlatforms() {
		pc, _ := cfg.Platforms.Get(string(p))
		opts.Platforms[p] = Timing{
			PollInterval:      common.Duration(pc.PollInterval, 5*time.Second),
			MaxAttempts:       pc.MaxAttempts,
			NavigationTimeout: common.Duration(pc.NavigationTimeout, 45*time.Second),
		}
	}
	return opts
}

func (o Options) timing(p models.Platform) Timing {
	t := o.Platforms[p]
	if t.PollInterval <= 0 {
		t.PollInterval = 5 * time.Second
	}
	if t.MaxAttempts < 1 {
		t.MaxAttempts = 120
	}
	if t.NavigationTimeout <= 0 {
		t.NavigationTimeout = 45 * time.Second
	}
	return t
}

type outcome struct {
	phase   models.CapturePhase
	message string
	at      time.Time
}

type capture struct {
	key      browser.Key
	lease    *browser.Lease
	profile  *platforms.Profile
	detector *detector.Detector
	timing   Timing
	logger   arbor.ILogger

	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	mu    sync.Mutex
	state models.CaptureState

	teardownOnce sync.Once
	stopNav      func()
	debounceMu   sync.Mutex
	debounce     *time.Timer
}

// poke queues an early check. Extra pokes while one is pending are dropped.
func (c *capture) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *capture) snapshot() models.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *capture) set(phase models.CapturePhase, message string, now time.Time) models.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Phase = phase
	c.state.Message = message
	c.state.UpdatedAt = now
	return c.state
}

func (c *capture) nextAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AttemptCount++
	return c.state.AttemptCount
}

// teardown deregisters the navigation listener and releases the browser
func (c *capture) teardown() {
	c.teardownOnce.Do(func() {
		if c.stopNav != nil {
			c.stopNav()
		}
		c.debounceMu.Lock()
		if c.debounce != nil {
			c.debounce.Stop()
		}
		c.debounceMu.Unlock()
		c.lease.Release()
	})
}

// Monitor runs at most one login capture per (user, platform)
type Monitor struct {
	registry *browser.Registry
	sessions *sessions.Store
	events   interfaces.EventService
	opts     Options
	clock    common.Clock
	logger   arbor.ILogger

	mu         sync.Mutex
	captures   map[browser.Key]*capture
	outcomes   map[browser.Key]outcome
	startLocks map[browser.Key]*sync.Mutex
	closed     bool
	wg         sync.WaitGroup
}

// NewMonitor creates a capture monitor. events may be nil.
func NewMonitor(registry *browser.Registry, store *sessions.Store, events interfaces.EventService, opts Options, clock common.Clock, logger arbor.ILogger) *Monitor {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Monitor{
		registry:   registry,
		sessions:   store,
		events:     events,
		opts:       opts,
		clock:      clock,
		logger:     logger,
		captures:   make(map[browser.Key]*capture),
		outcomes:   make(map[browser.Key]outcome),
		startLocks: make(map[browser.Key]*sync.Mutex),
	}
}

func (m *Monitor) startLock(key browser.Key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.startLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.startLocks[key] = l
	}
	return l
}

// Start opens the platform login page in a fresh browser and begins polling
// for a completed login. Any capture already running for the key is stopped
// first. Start returns once the page is open; polling runs in the background.
func (m *Monitor) Start(ctx context.Context, userID string, platform models.Platform) error {
	profile, err := platforms.Get(platform)
	if err != nil {
		return err
	}
	key := browser.Key{UserID: userID, Platform: platform}
	timing := m.opts.timing(platform)

	lock := m.startLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("%w: capture monitor is shut down", common.ErrResource)
	}
	prior := m.captures[key]
	m.mu.Unlock()

	if prior != nil {
		m.logger.Info().Str("key", key.String()).Msg("Superseding capture in progress")
		prior.cancel()
		<-prior.done
	}

	lease, err := browser.AcquireWithRetry(ctx, m.registry, key, nil, m.logger)
	if err != nil {
		return err
	}

	navCtx, cancelNav := context.WithTimeout(ctx, timing.NavigationTimeout)
	err = lease.Page().Navigate(navCtx, profile.LoginURL)
	cancelNav()
	if err != nil {
		lease.Release()
		return fmt.Errorf("%w: open login page: %v", common.ErrResource, err)
	}

	now := m.clock.Now()
	loopCtx, cancel := context.WithCancel(context.Background())
	c := &capture{
		key:      key,
		lease:    lease,
		profile:  profile,
		detector: detector.New(profile, m.logger),
		timing:   timing,
		logger:   m.logger.WithCorrelationId(uuid.New().String()),
		cancel:   cancel,
		done:     make(chan struct{}),
		wake:     make(chan struct{}, 1),
		state: models.CaptureState{
			UserID:      userID,
			Platform:    platform,
			Phase:       models.CapturePhaseMonitoring,
			Message:     msgWaiting,
			MaxAttempts: timing.MaxAttempts,
			StartedAt:   now,
			UpdatedAt:   now,
		},
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		lease.Release()
		return fmt.Errorf("%w: capture monitor is shut down", common.ErrResource)
	}
	m.captures[key] = c
	delete(m.outcomes, key)
	m.wg.Add(1)
	m.mu.Unlock()

	c.logger.Info().
		Str("user_id", userID).
		Str("platform", string(platform)).
		Int("max_attempts", timing.MaxAttempts).
		Dur("poll_interval", timing.PollInterval).
		Msg("Login capture started")
	m.publish(c.snapshot())

	common.SafeGo(m.logger, "capture:"+key.String(), func() {
		defer m.wg.Done()
		defer close(c.done)
		defer m.discard(c)
		m.run(loopCtx, c)
	})
	return nil
}

func (m *Monitor) run(ctx context.Context, c *capture) {
	c.stopNav = c.lease.Page().OnNavigate(func(string) {
		c.debounceMu.Lock()
		defer c.debounceMu.Unlock()
		if c.debounce != nil {
			c.debounce.Stop()
		}
		c.debounce = time.AfterFunc(m.opts.EarlyCheckDelay, c.poke)
	})

	timer := time.NewTimer(m.opts.FirstCheckDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lease.Done():
			m.finish(c, models.CapturePhaseFailed, msgTakenOver)
			return
		case <-timer.C:
			if m.check(ctx, c, true) {
				return
			}
			timer.Reset(c.timing.PollInterval)
		case <-c.wake:
			if m.check(ctx, c, false) {
				return
			}
		}
	}
}

// check runs one detection pass and reports whether the capture ended.
// Only timer ticks consume an attempt.
func (m *Monitor) check(ctx context.Context, c *capture, consume bool) bool {
	page := c.lease.Page()
	if !c.lease.Alive() || !page.Alive() {
		m.finish(c, models.CapturePhaseFailed, msgClosed)
		return true
	}

	if c.detector.IsLoggedIn(ctx, page) {
		m.publish(c.set(models.CapturePhaseCapturing, msgCapturing, m.clock.Now()))

		cookies, err := page.Cookies(ctx, c.profile.CookieURLs...)
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("Reading session cookies failed")
			m.finish(c, models.CapturePhaseError, msgCookies)
			return true
		}

		landed, _ := page.URL(ctx)
		cred := &models.Credential{Cookies: cookies, URL: landed, CapturedAt: m.clock.Now()}
		if _, err := m.sessions.Upsert(ctx, c.key.UserID, c.key.Platform, cred, m.opts.SessionTTL); err != nil {
			if ctx.Err() != nil {
				return true
			}
			c.logger.Error().Err(err).Msg("Saving captured session failed")
			m.finish(c, models.CapturePhaseError, msgSave)
			return true
		}

		m.finish(c, models.CapturePhaseConnected, msgConnected)
		return true
	}

	if !consume {
		return false
	}

	attempt := c.nextAttempt()
	if attempt >= c.timing.MaxAttempts {
		m.finish(c, models.CapturePhaseTimeout, msgTimeout)
		return true
	}
	msg := fmt.Sprintf("Waiting for login... (%d/%d)", attempt, c.timing.MaxAttempts)
	m.publish(c.set(models.CapturePhaseMonitoring, msg, m.clock.Now()))
	return false
}

// finish records a terminal phase and frees the browser
func (m *Monitor) finish(c *capture, phase models.CapturePhase, message string) {
	now := m.clock.Now()
	state := c.set(phase, message, now)
	c.teardown()

	m.mu.Lock()
	if m.captures[c.key] == c {
		delete(m.captures, c.key)
	}
	m.remember(c.key, outcome{phase: phase, message: message, at: now})
	m.mu.Unlock()

	metrics.CaptureOutcome(string(c.key.Platform), string(phase))
	c.logger.Info().
		Str("user_id", c.key.UserID).
		Str("platform", string(c.key.Platform)).
		Str("phase", string(phase)).
		Int("attempts", state.AttemptCount).
		Dur("elapsed", now.Sub(state.StartedAt)).
		Msg("Login capture finished")
	m.publish(state)
}

// discard drops a capture without recording an outcome
func (m *Monitor) discard(c *capture) {
	c.teardown()
	m.mu.Lock()
	if m.captures[c.key] == c {
		delete(m.captures, c.key)
	}
	m.mu.Unlock()
}

// remember stores a terminal outcome. Caller holds m.mu.
func (m *Monitor) remember(key browser.Key, o outcome) {
	m.outcomes[key] = o
	if len(m.outcomes) <= maxOutcomes {
		return
	}
	var oldest browser.Key
	var oldestAt time.Time
	for k, v := range m.outcomes {
		if o.at.Sub(v.at) > m.opts.OutcomeRetention {
			delete(m.outcomes, k)
			continue
		}
		if oldestAt.IsZero() || v.at.Before(oldestAt) {
			oldest, oldestAt = k, v.at
		}
	}
	if len(m.outcomes) > maxOutcomes {
		delete(m.outcomes, oldest)
	}
}

func (m *Monitor) publish(state models.CaptureState) {
	if m.events == nil {
		return
	}
	err := m.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventCaptureStatus,
		Payload: state,
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("Publishing capture status failed")
	}
}

// Status answers whether the user is connected. Connected comes only from
// the stored session; capture progress is overlaid when a capture is running
// or finished recently.
func (m *Monitor) Status(ctx context.Context, userID string, platform models.Platform) (*models.ConnectionStatus, error) {
	session, err := m.sessions.Get(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	status := &models.ConnectionStatus{Connected: m.sessions.IsValid(session)}
	if session != nil {
		expires := session.ExpiresAt
		status.ExpiresAt = &expires
	}

	key := browser.Key{UserID: userID, Platform: platform}
	m.mu.Lock()
	c := m.captures[key]
	last, hasLast := m.outcomes[key]
	m.mu.Unlock()

	if c != nil {
		state := c.snapshot()
		status.Monitoring = state.Phase == models.CapturePhaseMonitoring || state.Phase == models.CapturePhaseCapturing
		status.Phase = state.Phase
		status.CaptureStatus = state.Phase
		status.Message = state.Message
		status.Attempt = state.AttemptCount
		status.MaxAttempts = state.MaxAttempts
		return status, nil
	}

	if hasLast && m.clock.Now().Sub(last.at) <= m.opts.OutcomeRetention {
		status.CaptureStatus = last.phase
		status.Message = last.message
	}
	return status, nil
}

// CaptureNow forces an immediate detection pass for a running capture
func (m *Monitor) CaptureNow(userID string, platform models.Platform) error {
	key := browser.Key{UserID: userID, Platform: platform}
	m.mu.Lock()
	c := m.captures[key]
	m.mu.Unlock()
	if c == nil {
		return fmt.Errorf("%w: %s", common.ErrNoCapture, key)
	}
	c.poke()
	return nil
}

// Disconnect stops any running capture and deletes the stored session
func (m *Monitor) Disconnect(ctx context.Context, userID string, platform models.Platform) error {
	key := browser.Key{UserID: userID, Platform: platform}
	lock := m.startLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	c := m.captures[key]
	delete(m.outcomes, key)
	m.mu.Unlock()

	if c != nil {
		c.cancel()
		<-c.done
	}

	if err := m.sessions.Delete(ctx, userID, platform); err != nil {
		return err
	}
	m.logger.Info().Str("user_id", userID).Str("platform", string(platform)).Msg("Session disconnected")
	return nil
}

// Active returns the number of captures in flight
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

// Shutdown cancels every capture and waits for the poll loops to exit
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	m.closed = true
	running := make([]*capture, 0, len(m.captures))
	for _, c := range m.captures {
		running = append(running, c)
	}
	m.mu.Unlock()

	for _, c := range running {
		c.cancel()
	}
	m.wg.Wait()
	m.logger.Info().Int("cancelled", len(running)).Msg("Capture monitor shut down")
}
