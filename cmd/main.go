package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/services"
	"github.com/desertthunder/abx/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	config, err := loadConfig(configPath(), logger)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	shim := services.NewShimService(services.Options{
		BaseURL:     config.Client.BaseURL,
		Credentials: config.Credentials,
		Logger:      shared.WithLogger(logger, "component", "client"),
	})

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath(),
		Shim:       shim,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "abx",
		Usage:    "Local authentication shim and proxy for the Audible API",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

// configPath honours ABX_CONFIG and falls back to ./config.toml.
func configPath() string {
	if p := os.Getenv("ABX_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig reads path if it exists, then applies environment overrides and validates the result.
func loadConfig(path string, logger *log.Logger) (*shared.Config, error) {
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		} else {
			config = loaded
		}
	}

	if err := shared.ApplyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
