package cmd

import (
	"log/slog"

	"github.com/corvus-ai/corvid/db"
	"github.com/corvus-ai/corvid/internal/config"
	"github.com/corvus-ai/corvid/internal/log"
)

// runMigrate applies the database schema migrations. It only needs the
// storage configuration, so it runs without an API key.
func runMigrate() error {
	cfg, err := config.LoadStorage()
	if err != nil {
		return err
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: cfg.LogJSON})
	return db.Migrate(cfg.PostgresURL(), logger)
}
