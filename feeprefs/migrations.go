// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeprefs

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

type driverFactory func(*sql.DB) (database.Driver, error)

// applyMigrations brings the schema of db up to the latest migration found
// in migrationFS at path and returns the resulting schema version.
func applyMigrations(db *sql.DB, migrationFS fs.FS, path string,
	dbName string, newDriver driverFactory) (uint, error) {

	if db == nil {
		return 0, ErrNilDB
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return 0, fmt.Errorf("create source driver: %w", err)
	}

	driver, err := newDriver(db)
	if err != nil {
		return 0, fmt.Errorf("create %s driver: %w", dbName, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	if dirty {
		return version, fmt.Errorf("%s schema version %d is dirty",
			dbName, version)
	}

	log.Infof("Fee preference schema (%s) at version %d", dbName, version)

	return version, nil
}

// ApplySQLiteMigrations applies all SQLite migrations to the database and
// returns the schema version.
func ApplySQLiteMigrations(db *sql.DB) (uint, error) {
	return applyMigrations(db, sqliteFS, "migrations/sqlite", "sqlite",
		func(db *sql.DB) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{})
		},
	)
}

// ApplyPostgresMigrations applies all PostgreSQL migrations to the database
// and returns the schema version.
func ApplyPostgresMigrations(db *sql.DB) (uint, error) {
	return applyMigrations(db, postgresFS, "migrations/postgres",
		"postgres", func(db *sql.DB) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{})
		},
	)
}
