// Package migrations embeds the schema migrations and applies them at boot.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var MigrationFiles embed.FS

// RunMigrations brings the schema up to the latest embedded version. With
// autoMigrate false it only reports the current version and applies nothing.
func RunMigrations(db *sql.DB, autoMigrate bool) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		if err := recoverDirtyState(m, version); err != nil {
			return err
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled", "current_version", version)
		return nil
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("[Migrations] Schema up to date", "version", version)
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		applied, _, verr := m.Version()
		if verr != nil {
			return fmt.Errorf("failed to get applied migration version: %w", verr)
		}
		slog.Info("[Migrations] Schema migrated", "from_version", version, "to_version", applied)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// recoverDirtyState clears an interrupted migration by forcing the recorded
// version. Safe while the schema ships as a single baseline migration; revisit
// once incremental migrations land.
func recoverDirtyState(m *migrate.Migrate, version uint) error {
	slog.Warn("[Migrations] Dirty state detected, forcing recorded version", "version", version)
	if err := m.Force(int(version)); err != nil {
		return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
	}
	slog.Info("[Migrations] Dirty state recovered", "version", version)
	return nil
}
