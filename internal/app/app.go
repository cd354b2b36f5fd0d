package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/handlers"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/services/apply"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/capture"
	"github.com/ternarybob/jobpilot/internal/services/coverletter"
	"github.com/ternarybob/jobpilot/internal/services/events"
	"github.com/ternarybob/jobpilot/internal/services/metrics"
	"github.com/ternarybob/jobpilot/internal/services/profiles"
	"github.com/ternarybob/jobpilot/internal/services/scheduler"
	"github.com/ternarybob/jobpilot/internal/services/scraper"
	"github.com/ternarybob/jobpilot/internal/services/sessions"
	"github.com/ternarybob/jobpilot/internal/services/vault"
	"github.com/ternarybob/jobpilot/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Session and browser services
	Vault    *vault.Vault
	Sessions *sessions.Store
	Registry *browser.Registry
	Monitor  *capture.Monitor

	// Job services
	Profiles    *profiles.Directory
	Pipeline    *scraper.Pipeline
	Coordinator *apply.Coordinator
	Letters     *coverletter.Writer
	DailyScrape *scheduler.DailyScrape

	// HTTP handlers
	APIHandler         *handlers.APIHandler
	ConnectionHandler  *handlers.ConnectionHandler
	JobHandler         *handlers.JobHandler
	ApplicationHandler *handlers.ApplicationHandler
	WSHandler          *handlers.WebSocketHandler

	closeOnce sync.Once
	closeErr  error
}

// Options replace collaborators. Tests use them to swap in a fake browser.
type Options struct {
	Launcher browser.Launcher
	Clock    common.Clock
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	return NewWithOptions(cfg, logger, Options{})
}

// NewWithOptions initializes the application. Zero options use Chrome and
// the system clock.
func NewWithOptions(cfg *common.Config, logger arbor.ILogger, opts Options) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(opts); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	app.Logger.Info().Msg("Application initialized")
	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices(opts Options) error {
	cfg := a.Config
	clock := opts.Clock
	if clock == nil {
		clock = common.SystemClock
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return err
	}

	v, err := vault.New(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}
	a.Vault = v
	a.Sessions = sessions.NewStore(a.StorageManager.SessionStorage(), a.Vault, clock, a.Logger)

	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewChromeLauncher(browser.NewChromeConfig(cfg.Browser), a.Logger)
	}
	a.Registry = browser.NewRegistry(launcher, cfg.Browser.MaxConcurrent, a.Logger)
	a.Monitor = capture.NewMonitor(a.Registry, a.Sessions, a.EventService, capture.OptionsFromConfig(cfg), clock, a.Logger)

	a.Profiles = profiles.NewDirectory(cfg.Profiles.Dir, a.Logger)
	a.Pipeline = scraper.NewPipeline(
		a.Registry,
		a.Sessions,
		a.StorageManager.JobStorage(),
		a.EventService,
		scraper.TimingsFromConfig(cfg),
		a.Logger,
		scraper.WithClock(clock),
	)

	letters, err := coverletter.NewFromConfig(context.Background(), cfg.CoverLetter, a.Logger)
	if err != nil {
		return fmt.Errorf("cover letters: %w", err)
	}
	deps := apply.CoordinatorDeps{
		Registry:     a.Registry,
		Sessions:     a.Sessions,
		Jobs:         a.StorageManager.JobStorage(),
		Applications: a.StorageManager.ApplicationStorage(),
		Profiles:     a.Profiles,
		Events:       a.EventService,
		Filler:       apply.NewFiller(apply.FillTimingFromConfig(cfg.Apply), apply.PDFChecker{MaxBytes: 10 << 20}, a.Logger),
	}
	if letters != nil {
		a.Letters = letters
		deps.Letters = letters
		a.Logger.Info().Str("provider", cfg.CoverLetter.Provider).Msg("Cover letter generation enabled")
	}
	a.Coordinator = apply.NewCoordinator(deps, apply.BatchOptionsFromConfig(cfg), a.Logger)

	a.DailyScrape = scheduler.NewDailyScrape(a.Profiles, a.Sessions, a.Pipeline, a.Logger)
	a.SchedulerService = scheduler.NewService(a.Logger)
	return nil
}

func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Registry, a.Logger)
	a.ConnectionHandler = handlers.NewConnectionHandler(a.Monitor, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Pipeline, a.Coordinator, a.StorageManager.JobStorage(), a.Profiles, a.Logger)
	a.ApplicationHandler = handlers.NewApplicationHandler(a.StorageManager.ApplicationStorage(), a.Coordinator, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.Logger, &a.Config.WebSocket)
	if err := a.WSHandler.SubscribeToEvents(a.EventService); err != nil {
		return fmt.Errorf("failed to subscribe websocket to events: %w", err)
	}
	return nil
}

func (a *App) initScheduler() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Daily scrape disabled")
		return nil
	}
	if err := a.SchedulerService.RegisterJob(
		scheduler.DailyScrapeJob,
		a.Config.Scheduler.Schedule,
		"Scrape fresh listings for every connected profile",
		a.DailyScrape.Run,
	); err != nil {
		return err
	}
	return a.SchedulerService.Start()
}

// Close stops captures, releases every browser, then stops the scheduler,
// the event bus and storage. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *App) close() error {
	if a.Monitor != nil {
		a.Monitor.Shutdown()
		a.Logger.Info().Msg("Capture monitor stopped")
	}

	if a.Registry != nil {
		a.Registry.Shutdown()
		a.Logger.Info().Msg("Browsers released")
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Letters != nil {
		if err := a.Letters.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cover letter provider")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
