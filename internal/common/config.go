package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Security    SecurityConfig    `toml:"security"`
	Browser     BrowserConfig     `toml:"browser"`
	Capture     CaptureConfig     `toml:"capture"`
	Platforms   PlatformsConfig   `toml:"platforms"`
	Apply       ApplyConfig       `toml:"apply"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Profiles    ProfilesConfig    `toml:"profiles"`
	CoverLetter CoverLetterConfig `toml:"coverletter"`
	Metrics     MetricsConfig     `toml:"metrics"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                       // "stdout", "file"
}

// SecurityConfig holds key material. Both values are normally supplied via env.
type SecurityConfig struct {
	EncryptionKey string `toml:"encryption_key"` // 32 raw bytes or 64 hex chars (AES-256)
	JWTSecret     string `toml:"jwt_secret"`     // HS256 secret used to verify bearer tokens
}

// BrowserConfig controls the chromedp launcher and registry
type BrowserConfig struct {
	Headless      bool   `toml:"headless"`
	DisableGPU    bool   `toml:"disable_gpu"`
	NoSandbox     bool   `toml:"no_sandbox"`
	UserAgent     string `toml:"user_agent"`
	MaxConcurrent int    `toml:"max_concurrent" validate:"min=1"` // Upper bound on live browser processes
	LaunchTimeout string `toml:"launch_timeout"`                  // e.g. "30s"
}

// CaptureConfig controls the login capture monitor
type CaptureConfig struct {
	FirstCheckDelay  string `toml:"first_check_delay"` // Delay before the first poll (default "2s")
	EarlyCheckDelay  string `toml:"early_check_delay"` // Delay after a main-frame navigation before an early check
	SessionTTL       string `toml:"session_ttl"`       // Lifetime of a captured session (default "720h")
	OutcomeRetention string `toml:"outcome_retention"` // How long the last terminal phase stays visible in status
}

// PlatformConfig holds per-platform timings and bounds
type PlatformConfig struct {
	PollInterval        string `toml:"poll_interval"`                         // Capture poll interval
	MaxAttempts         int    `toml:"max_attempts" validate:"min=1"`         // Capture polls before timeout
	MaxScrollIterations int    `toml:"max_scroll_iterations" validate:"min=1"` // Grow-the-page cap
	SettleDelay         string `toml:"settle_delay"`                          // Wait after search navigation
	ResultsTimeout      string `toml:"results_timeout"`                       // Wait for the results container
	ScrollDelay         string `toml:"scroll_delay"`                          // Wait between scrolls
	NavigationTimeout   string `toml:"navigation_timeout"`                    // Page load timeout
}

type PlatformsConfig struct {
	Naukri   PlatformConfig `toml:"naukri"`
	LinkedIn PlatformConfig `toml:"linkedin"`
}

// Get returns the configuration for a platform name
func (p PlatformsConfig) Get(name string) (PlatformConfig, bool) {
	switch name {
	case "naukri":
		return p.Naukri, true
	case "linkedin":
		return p.LinkedIn, true
	default:
		return PlatformConfig{}, false
	}
}

// ApplyConfig controls the filler and batch coordinator
type ApplyConfig struct {
	MaxBatchSize   int     `toml:"max_batch_size" validate:"min=1"`
	DefaultLimit   int     `toml:"default_limit" validate:"min=1"`
	InitialDelay   string  `toml:"initial_delay"`   // Wait after job page navigation
	StepDelay      string  `toml:"step_delay"`      // Wait after clicking apply
	SuccessTimeout string  `toml:"success_timeout"` // Best-effort wait for a success marker
	RatePerMinute  float64 `toml:"rate_per_minute"` // Applications per minute within a batch (0 = unlimited)
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // 5-field cron expression, default "0 8 * * *"
}

type ProfilesConfig struct {
	Dir string `toml:"dir"` // Directory of per-user profile files (*.toml, *.yaml)
}

// CoverLetterConfig controls optional LLM cover letter generation
type CoverLetterConfig struct {
	Enabled     bool    `toml:"enabled"`
	Provider    string  `toml:"provider" validate:"omitempty,oneof=gemini claude"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	RenderPDF   bool    `toml:"render_pdf"` // Also render a PDF for cover-letter upload inputs
	OutputDir   string  `toml:"output_dir"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

type WebSocketConfig struct {
	ThrottleInterval string `toml:"throttle_interval"` // Minimum gap between broadcasts per capture key
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			Headless:      false, // Capture needs a visible window for the human login
			DisableGPU:    true,
			NoSandbox:     true,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxConcurrent: 4,
			LaunchTimeout: "30s",
		},
		Capture: CaptureConfig{
			FirstCheckDelay:  "2s",
			EarlyCheckDelay:  "2s",
			SessionTTL:       "720h", // 30 days
			OutcomeRetention: "10m",
		},
		Platforms: PlatformsConfig{
			Naukri: PlatformConfig{
				PollInterval:        "5s",
				MaxAttempts:         120, // 10 minutes
				MaxScrollIterations: 50,
				SettleDelay:         "3s",
				ResultsTimeout:      "20s",
				ScrollDelay:         "2s",
				NavigationTimeout:   "45s",
			},
			LinkedIn: PlatformConfig{
				PollInterval:        "5s",
				MaxAttempts:         300, // 25 minutes, LinkedIn often adds a challenge step
				MaxScrollIterations: 30,
				SettleDelay:         "5s",
				ResultsTimeout:      "20s",
				ScrollDelay:         "2s",
				NavigationTimeout:   "45s",
			},
		},
		Apply: ApplyConfig{
			MaxBatchSize:   25,
			DefaultLimit:   10,
			InitialDelay:   "2s",
			StepDelay:      "2s",
			SuccessTimeout: "5s",
			RatePerMinute:  6,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "0 8 * * *", // Daily at 08:00
		},
		Profiles: ProfilesConfig{
			Dir: "./profiles",
		},
		CoverLetter: CoverLetterConfig{
			Enabled:     false,
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			MaxTokens:   1024,
			OutputDir:   "./data/coverletters",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "500ms",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	loadDotEnv()
	applyEnvOverrides(config)

	return config, nil
}

// loadDotEnv loads ./.env when present. Existing environment variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		GetLogger().Warn().Err(err).Msg("Failed to load .env file")
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JOBPILOT_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("JOBPILOT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JOBPILOT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("JOBPILOT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("JOBPILOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("JOBPILOT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Security configuration (prefixed name wins over the bare name)
	if key := firstEnv("JOBPILOT_ENCRYPTION_KEY", "ENCRYPTION_KEY"); key != "" {
		config.Security.EncryptionKey = key
	}
	if secret := firstEnv("JOBPILOT_JWT_SECRET", "JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}

	// Browser configuration
	if headless := os.Getenv("JOBPILOT_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if maxConcurrent := os.Getenv("JOBPILOT_BROWSER_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Browser.MaxConcurrent = mc
		}
	}
	if userAgent := os.Getenv("JOBPILOT_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// Scheduler configuration
	if enabled := os.Getenv("JOBPILOT_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("JOBPILOT_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}

	// Profiles configuration
	if dir := os.Getenv("JOBPILOT_PROFILES_DIR"); dir != "" {
		config.Profiles.Dir = dir
	}

	// Cover letter configuration
	if enabled := os.Getenv("JOBPILOT_COVERLETTER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.CoverLetter.Enabled = e
		}
	}
	if provider := os.Getenv("JOBPILOT_COVERLETTER_PROVIDER"); provider != "" {
		config.CoverLetter.Provider = provider
	}
	if config.CoverLetter.APIKey == "" {
		switch config.CoverLetter.Provider {
		case "claude":
			config.CoverLetter.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			config.CoverLetter.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config
// Flags have the highest priority and override both config file and environment variables
func ApplyFlagOverrides(config *Config, port int, host string, headless *bool) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if headless != nil {
		config.Browser.Headless = *headless
	}
}

// Validate checks struct constraints and the scheduler cron expression.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return err
		}
	}
	if c.Apply.DefaultLimit > c.Apply.MaxBatchSize {
		return fmt.Errorf("invalid configuration: apply.default_limit (%d) exceeds apply.max_batch_size (%d)",
			c.Apply.DefaultLimit, c.Apply.MaxBatchSize)
	}
	return nil
}

// ValidateSchedule checks a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// Duration parses s and falls back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
