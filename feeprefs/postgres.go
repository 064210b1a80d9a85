// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeprefs

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// postgresQueries are the PostgreSQL statements of the store.
var postgresQueries = queries{
	get: `SELECT fee_level FROM fee_preferences WHERE asset = $1`,
	upsert: `INSERT INTO fee_preferences (asset, fee_level, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset) DO UPDATE SET
			fee_level = EXCLUDED.fee_level,
			updated_at = EXCLUDED.updated_at`,
	list: `SELECT asset, fee_level, updated_at FROM fee_preferences
		ORDER BY asset`,
}

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a store over a migrated PostgreSQL database.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	store, err := newSQLStore(db, postgresQueries)
	if err != nil {
		return nil, err
	}

	return &PostgresStore{sqlStore: store}, nil
}

// OpenPostgres connects to the PostgreSQL database at dsn through the pgx
// driver and checks that it is reachable.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}
