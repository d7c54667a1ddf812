package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/abx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes the example config if none exists and creates the library database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("✓ Config written to %s\n", configPath)
	} else if loaded, err := shared.LoadConfig(configPath); err != nil {
		r.logger.Warn("failed to load config, using current settings", "error", err)
	} else {
		config = loaded
		if err := shared.ApplyEnv(config); err != nil {
			return err
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenLibraryDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	r.writePlain("✓ Library database ready at %s\n", config.Database.Path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Set AUDIBLE_EMAIL, AUDIBLE_PASSWORD and AUDIBLE_COUNTRY_CODE (or fill in [credentials])\n")
	r.writePlain("2. Run 'abx serve' and then 'abx auth login'\n")
	return nil
}
