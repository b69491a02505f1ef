package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// newMigrate builds a migrate instance on its own connection; closing it
// closes that connection only.
func newMigrate(driver, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		drv, err := msqlite.WithInstance(db, &msqlite.Config{})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create sqlite migrate driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "sqlite3", drv)

	case DriverPostgres:
		config, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		db := stdlib.OpenDB(*config.ConnConfig)
		drv, err := mpostgres.WithInstance(db, &mpostgres.Config{})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres migrate driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "postgres", drv)
	}
	return nil, fmt.Errorf("store: driver %q has no migrations", driver)
}

// MigrateUp applies all pending migrations.
func MigrateUp(driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug().Str("driver", driver).Msg("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Info().Str("driver", driver).Uint("version", version).Msg("migrated")
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(driver, dsn string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	version, _, verr := m.Version()
	if errors.Is(verr, migrate.ErrNilVersion) {
		log.Info().Str("driver", driver).Msg("rolled back all migrations")
		return nil
	}
	log.Info().Str("driver", driver).Uint("version", version).Msg("rolled back")
	return nil
}

// MigrateStatus reports the applied version; ok is false when none is applied.
func MigrateStatus(driver, dsn string) (version uint, dirty bool, ok bool, err error) {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return 0, false, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, true, nil
}
