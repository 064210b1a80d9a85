// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeprefs

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// sqliteQueries are the SQLite statements of the store.
var sqliteQueries = queries{
	get: `SELECT fee_level FROM fee_preferences WHERE asset = ?`,
	upsert: `INSERT INTO fee_preferences (asset, fee_level, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (asset) DO UPDATE SET
			fee_level = excluded.fee_level,
			updated_at = excluded.updated_at`,
	list: `SELECT asset, fee_level, updated_at FROM fee_preferences
		ORDER BY asset`,
}

// SQLiteStore is the SQLite implementation of Store.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates a store over a migrated SQLite database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store, err := newSQLStore(db, sqliteQueries)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{sqlStore: store}, nil
}

// OpenSQLite opens the SQLite database at path in WAL mode with a busy
// timeout, so concurrent writers wait for the lock instead of failing.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=foreign_keys=on" +
		"&_pragma=journal_mode=WAL" +
		"&_txlock=immediate" +
		"&_pragma=busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return db, nil
}
