package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("JobPilot", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Bool("headless", config.Browser.Headless).
		Int("max_browsers", config.Browser.MaxConcurrent).
		Bool("scheduler", config.Scheduler.Enabled).
		Msg("JobPilot starting")
}
