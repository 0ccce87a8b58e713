// Copyright (c) 2026 Averia. All rights reserved.
// Author: platform@averia.app

// Package migration applies schema migrations at application startup.
package migration

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Run applies all pending "up" migrations from the given directory.
//
// Parameters:
//   - logger: *slog.Logger
//   - databaseURL: PostgreSQL connection string
//   - migrationPath: Directory containing the .sql migration files
//
// Returns:
//   - error: nil when the schema is up to date
func Run(logger *slog.Logger, databaseURL, migrationPath string) error {

	// 1. Initialize the migrator with a file source
	migrator, err := migrate.New("file://"+migrationPath, databaseURL)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer func() {
		sourceErr, dbErr := migrator.Close()
		if sourceErr != nil {
			logger.Warn("migration_source_close_failed", slog.String("error", sourceErr.Error()))
		}
		if dbErr != nil {
			logger.Warn("migration_db_close_failed", slog.String("error", dbErr.Error()))
		}
	}()

	// 2. Apply every pending migration
	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_no_change")
			return nil
		}
		return fmt.Errorf("migration: up: %w", err)
	}

	// 3. Report the final schema version
	version, dirty, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("migration: version: %w", err)
	}

	logger.Info("migration_applied",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
