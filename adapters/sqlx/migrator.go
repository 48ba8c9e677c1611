package sqlx

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var embeddedMigrations embed.FS

// Migrate applies the embedded schema migrations for the store's driver.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s, s.logger)
}

// Migrate brings the leaderboard schema up to date.
func Migrate(ctx context.Context, s *Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		dbDriver database.Driver
		err      error
	)
	switch s.driver {
	case DriverPostgres:
		dbDriver, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
	case DriverMySQL:
		dbDriver, err = mysql.WithInstance(s.db.DB, &mysql.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("migrate: failed to create %s driver: %w", s.driver, err)
	}

	migrationSource, err := iofs.New(embeddedMigrations, "migrations/"+string(s.driver))
	if err != nil {
		return fmt.Errorf("migrate: failed to create driver from embedded migrations: %w", err)
	}

	migratorInstance, err := migrate.NewWithInstance("iofs", migrationSource, string(s.driver), dbDriver)
	if err != nil {
		return fmt.Errorf("migrate: failed to create migration instance: %w", err)
	}

	logger.InfoContext(ctx, "Starting migrations...", "driver", s.driver)
	if err := migratorInstance.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.InfoContext(ctx, "No migrations to run.")
		} else {
			return fmt.Errorf("migrate: failed to migrate: %w", err)
		}
	}
	logger.InfoContext(ctx, "Migrations completed successfully.")
	return nil
}

// Migrations exposes the embedded migration files.
func Migrations() fs.FS { return embeddedMigrations }
