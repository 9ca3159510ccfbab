package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationStatus describes the schema against the migrations in the binary.
type MigrationStatus struct {
	Version uint `json:"version"`
	Latest  uint `json:"latest"`
	Dirty   bool `json:"dirty"`
}

// Pending reports whether embedded migrations are not applied yet.
func (s MigrationStatus) Pending() bool { return s.Version < s.Latest }

func embeddedSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// withMigrator runs fn on a connection checked out of db. The driver is
// built from that connection so closing the migrator returns it to the pool
// and leaves db open for the store.
func withMigrator(db *sql.DB, fn func(*migrate.Migrate) error) error {
	ctx := context.Background()
	src, err := embeddedSource()
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("failed to close migrator", slog.Any("source_err", srcErr), slog.Any("db_err", dbErr), slog.String("component", "db_migrate"))
		}
	}()
	return fn(m)
}

// RunMigrations applies all pending versioned migrations embedded in the
// binary. It is safe to run on every start.
func RunMigrations(db *sql.DB) error {
	return withMigrator(db, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
				return nil
			}
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		version, dirty, err := m.Version()
		if err != nil {
			slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
			return nil
		}
		if dirty {
			return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
		}
		slog.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.String("component", "db_migrate"))
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(db *sql.DB) error {
	return withMigrator(db, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, migrate.ErrNilVersion) {
				slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
				return nil
			}
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return nil
	})
}

// Status returns the applied version and the newest embedded one. Version
// is zero when nothing is applied.
func Status(db *sql.DB) (MigrationStatus, error) {
	var st MigrationStatus
	latest, err := latestEmbedded()
	if err != nil {
		return st, err
	}
	st.Latest = latest
	err = withMigrator(db, func(m *migrate.Migrate) error {
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		st.Version, st.Dirty = v, dirty
		return nil
	})
	return st, err
}

func latestEmbedded() (uint, error) {
	src, err := embeddedSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read embedded migrations: %w", err)
		}
		v = next
	}
}
