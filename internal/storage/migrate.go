package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies pending migrations and returns the resulting
// schema version.
func RunMigrations(dbPath string) (uint, error) {
	var version uint
	err := withMigrate(dbPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	return version, err
}

// SchemaVersion reports the applied schema version. ok is false on a
// database that was never migrated.
func SchemaVersion(dbPath string) (version uint, ok bool, err error) {
	err = withMigrate(dbPath, func(m *migrate.Migrate) error {
		v, dirty, verr := m.Version()
		switch {
		case errors.Is(verr, migrate.ErrNilVersion):
			return nil
		case verr != nil:
			return fmt.Errorf("read schema version: %w", verr)
		case dirty:
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version, ok = v, true
		return nil
	})
	return version, ok, err
}

// withMigrate runs fn on a dedicated connection; the migrate driver closes
// the database it is given.
func withMigrate(dbPath string, fn func(*migrate.Migrate) error) error {
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}
