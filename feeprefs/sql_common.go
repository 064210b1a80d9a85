// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeprefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/txengine"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// queries holds the statements of one SQL dialect.
type queries struct {
	get    string
	upsert string
	list   string
}

// sqlStore implements Store over database/sql. The SQLite and PostgreSQL
// stores differ only in their statements.
type sqlStore struct {
	db      *sql.DB
	queries queries
	now     func() time.Time
}

func newSQLStore(db *sql.DB, q queries) (sqlStore, error) {
	if db == nil {
		return sqlStore{}, ErrNilDB
	}

	return sqlStore{db: db, queries: q, now: time.Now}, nil
}

// FeeLevelFor returns the saved level for asset, or None.
func (s *sqlStore) FeeLevelFor(ctx context.Context,
	asset money.Asset) (fn.Option[txengine.FeeLevel], error) {

	var name string
	err := s.db.QueryRowContext(ctx, s.queries.get, asset.Code()).
		Scan(&name)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[txengine.FeeLevel](), nil

	case err != nil:
		return fn.None[txengine.FeeLevel](), fmt.Errorf("get fee "+
			"level for %v: %w", asset, err)
	}

	level, err := txengine.ParseFeeLevel(name)
	if err != nil {
		return fn.None[txengine.FeeLevel](), err
	}

	return fn.Some(level), nil
}

// SaveFeeLevel upserts level for asset.
func (s *sqlStore) SaveFeeLevel(ctx context.Context, asset money.Asset,
	level txengine.FeeLevel) error {

	if err := checkSave(asset, level); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx, s.queries.upsert, asset.Code(), level.String(),
		s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save fee level for %v: %w", asset, err)
	}

	log.Debugf("Saved fee level %v for %v", level, asset)

	return nil
}

// List returns every saved preference ordered by asset code.
func (s *sqlStore) List(ctx context.Context) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.list)
	if err != nil {
		return nil, fmt.Errorf("list fee levels: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var (
			pref      Preference
			name      string
			updatedAt int64
		)
		err = rows.Scan(&pref.Asset, &name, &updatedAt)
		if err != nil {
			return nil, err
		}

		pref.Level, err = txengine.ParseFeeLevel(name)
		if err != nil {
			return nil, err
		}
		pref.UpdatedAt = time.Unix(updatedAt, 0)

		prefs = append(prefs, pref)
	}

	return prefs, rows.Err()
}
