package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/browser/browsertest"
	"github.com/ternarybob/jobpilot/internal/services/events"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
	"github.com/ternarybob/jobpilot/internal/services/sessions/sessionstest"
)

const (
	naukriHome = "https://www.naukri.com/mnjuser/homepage"
	loggedIn   = `<html><body><div class="nI-gNb-drawer__user-name">Asha</div></body></html>`
	loginForm  = `<html><body><form><input type="email"><input type="password"></form></body></html>`
)

type harness struct {
	monitor  *Monitor
	registry *browser.Registry
	launcher *browsertest.Launcher
	storage  *sessionstest.Storage
	store    *sessions.Store

	mu    sync.Mutex
	pages []*browsertest.Page
}

func (h *harness) page(i int) *browsertest.Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[i]
}

func fastOptions() Options {
	return Options{
		FirstCheckDelay:  10 * time.Millisecond,
		EarlyCheckDelay:  5 * time.Millisecond,
		SessionTTL:       time.Hour,
		OutcomeRetention: time.Minute,
		Platforms: map[models.Platform]Timing{
			models.PlatformNaukri:   {PollInterval: 10 * time.Millisecond, MaxAttempts: 3, NavigationTimeout: time.Second},
			models.PlatformLinkedIn: {PollInterval: 10 * time.Millisecond, MaxAttempts: 3, NavigationTimeout: time.Second},
		},
	}
}

func newHarness(t *testing.T, opts Options, eventService interfaces.EventService) *harness {
	t.Helper()
	h := &harness{}
	h.launcher = &browsertest.Launcher{Next: func(browser.Key) *browsertest.Browser {
		p := browsertest.NewPage()
		p.Routes["https://www.naukri.com/nlogin/login"] = loginForm
		h.mu.Lock()
		h.pages = append(h.pages, p)
		h.mu.Unlock()
		return browsertest.NewBrowser(p)
	}}
	logger := arbor.NewLogger()
	h.registry = browser.NewRegistry(h.launcher, 4, logger)

	h.store, h.storage = sessionstest.NewStore(t)
	h.monitor = NewMonitor(h.registry, h.store, eventService, opts, nil, logger)
	t.Cleanup(func() {
		h.monitor.Shutdown()
		h.registry.Shutdown()
	})
	return h
}

func (h *harness) status(t *testing.T) *models.ConnectionStatus {
	t.Helper()
	st, err := h.monitor.Status(context.Background(), "u1", models.PlatformNaukri)
	require.NoError(t, err)
	return st
}

func (h *harness) waitFor(t *testing.T, phase models.CapturePhase) *models.ConnectionStatus {
	t.Helper()
	var st *models.ConnectionStatus
	require.Eventually(t, func() bool {
		st = h.status(t)
		return st.CaptureStatus == phase && !st.Monitoring
	}, 2*time.Second, 5*time.Millisecond, "capture never reached %s", phase)
	return st
}

func TestLoginOnPostLoginURLConnects(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	ctx := context.Background()

	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))
	page := h.page(0)
	assert.Equal(t, []string{"https://www.naukri.com/nlogin/login"}, page.Navigations)

	st := h.status(t)
	assert.False(t, st.Connected)

	page.SetCookieJar([]models.Cookie{{Name: "nauk_at", Value: "token", Domain: ".naukri.com"}})
	page.SetURL(naukriHome)

	st = h.waitFor(t, models.CapturePhaseConnected)
	assert.True(t, st.Connected)
	require.NotNil(t, st.ExpiresAt)
	assert.Equal(t, msgConnected, st.Message)

	cred, err := h.store.Credential(ctx, "u1", models.PlatformNaukri)
	require.NoError(t, err)
	require.Len(t, cred.Cookies, 1)
	assert.Equal(t, "token", cred.Cookies[0].Value)
	assert.Equal(t, naukriHome, cred.URL)

	assert.Equal(t, 0, h.registry.Count(), "browser released on connect")
	assert.Equal(t, 0, page.ListenerCount())
	assert.Equal(t, 0, h.monitor.Active())
}

func TestNoLoginTimesOutAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))

	st := h.waitFor(t, models.CapturePhaseTimeout)
	assert.False(t, st.Connected)
	assert.Equal(t, msgTimeout, st.Message)
	assert.Equal(t, 0, h.registry.Count())
	assert.Equal(t, 0, h.page(0).ListenerCount())
}

func TestClosedBrowserFails(t *testing.T) {
	opts := fastOptions()
	opts.Platforms[models.PlatformNaukri] = Timing{PollInterval: 10 * time.Millisecond, MaxAttempts: 1000, NavigationTimeout: time.Second}
	h := newHarness(t, opts, nil)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))

	h.page(0).Kill()

	st := h.waitFor(t, models.CapturePhaseFailed)
	assert.Equal(t, msgClosed, st.Message)
	assert.Equal(t, 0, h.registry.Count())
}

func TestEarlyChecksDoNotConsumeAttempts(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	opts.Platforms[models.PlatformNaukri] = Timing{PollInterval: time.Hour, MaxAttempts: 3, NavigationTimeout: time.Second}
	h := newHarness(t, opts, nil)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))

	for i := 0; i < 5; i++ {
		require.NoError(t, h.monitor.CaptureNow("u1", models.PlatformNaukri))
		time.Sleep(5 * time.Millisecond)
	}
	st := h.status(t)
	assert.True(t, st.Monitoring)
	assert.Equal(t, models.CapturePhaseMonitoring, st.Phase)
	assert.Equal(t, 0, st.Attempt)
	assert.Equal(t, 3, st.MaxAttempts)

	h.page(0).SetHTML(loggedIn)
	require.NoError(t, h.monitor.CaptureNow("u1", models.PlatformNaukri))
	h.waitFor(t, models.CapturePhaseConnected)
}

func TestNavigationTriggersEarlyCheck(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	h := newHarness(t, opts, nil)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))

	page := h.page(0)
	require.Eventually(t, func() bool { return page.ListenerCount() == 1 }, time.Second, time.Millisecond)

	page.SetHTML(loggedIn)
	page.FireNavigate("https://www.naukri.com/")
	h.waitFor(t, models.CapturePhaseConnected)
	assert.Equal(t, 0, page.ListenerCount())
}

func TestCaptureNowWithoutCapture(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	err := h.monitor.CaptureNow("u1", models.PlatformNaukri)
	assert.ErrorIs(t, err, common.ErrNoCapture)
}

func TestSecondStartSupersedesFirst(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	h := newHarness(t, opts, nil)
	ctx := context.Background()

	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))
	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))

	launched := h.launcher.Launched()
	require.Len(t, launched, 2)
	assert.Equal(t, 1, launched[0].CloseCount())
	assert.True(t, launched[1].Alive())
	assert.Equal(t, 0, h.page(0).ListenerCount())
	assert.Equal(t, 1, h.monitor.Active())
	assert.Equal(t, 1, h.registry.Count())
}

func TestSaveFailureIsErrorPhase(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	h.storage.SetFailPut(true)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))
	h.page(0).SetHTML(loggedIn)

	st := h.waitFor(t, models.CapturePhaseError)
	assert.False(t, st.Connected)
	assert.Equal(t, msgSave, st.Message)
	assert.Equal(t, 0, h.registry.Count())
}

func TestNavigateFailureReleasesBrowser(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	h.launcher.Next = func(browser.Key) *browsertest.Browser {
		p := browsertest.NewPage()
		p.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
		return browsertest.NewBrowser(p)
	}

	err := h.monitor.Start(context.Background(), "u1", models.PlatformNaukri)
	assert.ErrorIs(t, err, common.ErrResource)
	assert.Equal(t, 0, h.registry.Count())
	assert.Equal(t, 0, h.monitor.Active())
}

func TestStatusConnectedComesFromSessionOnly(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	h := newHarness(t, opts, nil)
	ctx := context.Background()

	_, err := h.store.Upsert(ctx, "u1", models.PlatformNaukri, &models.Credential{}, time.Hour)
	require.NoError(t, err)

	st := h.status(t)
	assert.True(t, st.Connected)
	assert.False(t, st.Monitoring)
	assert.Empty(t, st.CaptureStatus)

	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))
	st = h.status(t)
	assert.True(t, st.Connected)
	assert.True(t, st.Monitoring)
	assert.Equal(t, models.CapturePhaseMonitoring, st.Phase)

	_, err = h.store.Upsert(ctx, "u1", models.PlatformNaukri, &models.Credential{}, -time.Minute)
	require.NoError(t, err)
	assert.False(t, h.status(t).Connected)
}

func TestDisconnectCancelsCaptureAndDeletesSession(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	h := newHarness(t, opts, nil)
	ctx := context.Background()

	sessionstest.Connect(t, h.store, "u1", models.PlatformNaukri, nil, time.Hour)
	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))

	require.NoError(t, h.monitor.Disconnect(ctx, "u1", models.PlatformNaukri))
	st := h.status(t)
	assert.False(t, st.Connected)
	assert.False(t, st.Monitoring)
	assert.Empty(t, st.CaptureStatus)
	assert.Equal(t, 0, h.registry.Count())
}

func TestShutdownStopsEveryCapture(t *testing.T) {
	opts := fastOptions()
	opts.FirstCheckDelay = time.Hour
	h := newHarness(t, opts, nil)
	ctx := context.Background()

	require.NoError(t, h.monitor.Start(ctx, "u1", models.PlatformNaukri))
	require.NoError(t, h.monitor.Start(ctx, "u2", models.PlatformNaukri))

	h.monitor.Shutdown()
	assert.Equal(t, 0, h.monitor.Active())
	assert.Equal(t, 0, h.registry.Count())
	assert.ErrorIs(t, h.monitor.Start(ctx, "u3", models.PlatformNaukri), common.ErrResource)
}

func TestPhaseChangesArePublished(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	var mu sync.Mutex
	var phases []models.CapturePhase
	require.NoError(t, bus.Subscribe(interfaces.EventCaptureStatus, func(_ context.Context, e interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, e.Payload.(models.CaptureState).Phase)
		return nil
	}))

	h := newHarness(t, fastOptions(), bus)
	require.NoError(t, h.monitor.Start(context.Background(), "u1", models.PlatformNaukri))
	h.page(0).SetHTML(loggedIn)
	h.waitFor(t, models.CapturePhaseConnected)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		seen := map[models.CapturePhase]bool{}
		for _, p := range phases {
			seen[p] = true
		}
		return seen[models.CapturePhaseMonitoring] && seen[models.CapturePhaseCapturing] && seen[models.CapturePhaseConnected]
	}, time.Second, 5*time.Millisecond)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := OptionsFromConfig(common.NewDefaultConfig())
	assert.Equal(t, 2*time.Second, opts.FirstCheckDelay)
	assert.Equal(t, 720*time.Hour, opts.SessionTTL)
	assert.Equal(t, 120, opts.Platforms[models.PlatformNaukri].MaxAttempts)
	assert.Equal(t, 300, opts.Platforms[models.PlatformLinkedIn].MaxAttempts)
	assert.Equal(t, 5*time.Second, opts.Platforms[models.PlatformNaukri].PollInterval)
}
