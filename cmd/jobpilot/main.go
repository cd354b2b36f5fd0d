package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/app"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	headless     = flag.Bool("headless", false, "Run Chrome headless (overrides config)")
	crashDir     = flag.String("crash-dir", "", "Directory for crash reports (default ./logs)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("JobPilot %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	common.InstallCrashHandler(*crashDir)
	defer common.RecoverWithCrashFile()

	// Shorthand takes precedence
	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Only an explicit -headless overrides the config file
	var headlessOverride *bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			headlessOverride = headless
		}
	})

	if len(configFiles) == 0 {
		if _, err := os.Stat("jobpilot.toml"); err == nil {
			configFiles = append(configFiles, "jobpilot.toml")
		} else if _, err := os.Stat("deployments/local/jobpilot.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/jobpilot.toml")
		}
	}

	// Startup order: config, CLI overrides, validation, logger, banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().
			Str("paths", strings.Join(configFiles, ",")).
			Err(err).
			Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost, headlessOverride)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Info().
		Str("config_files", strings.Join(configFiles, ",")).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Bool("headless", config.Browser.Headless).
		Bool("scheduler", config.Scheduler.Enabled).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	srv := server.New(application)

	serverErr := make(chan error, 1)
	go func() {
		defer common.RecoverWithCrashFile()
		serverErr <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	// Releases every browser before storage closes
	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Application shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}
