// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeprefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/txengine"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNilDB is returned when a store is created without a database
	// handle.
	ErrNilDB = errors.New("nil database handle")

	// ErrInvalidFeeLevel is returned when saving a level that has no
	// name.
	ErrInvalidFeeLevel = errors.New("invalid fee level")

	// ErrNoAsset is returned when saving a level for the zero asset.
	ErrNoAsset = errors.New("no asset")
)

// Preference is one saved fee level.
type Preference struct {
	// Asset is the code of the asset the level applies to.
	Asset string

	Level txengine.FeeLevel

	// UpdatedAt is when the level was last saved, to the second.
	UpdatedAt time.Time
}

// Store is a fee preference store that can also list its contents.
type Store interface {
	txengine.FeePreferenceStore

	// List returns every saved preference ordered by asset code.
	List(ctx context.Context) ([]Preference, error)
}

// A compile-time assertion to ensure every store satisfies Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// checkSave validates the arguments of a save.
func checkSave(asset money.Asset, level txengine.FeeLevel) error {
	if asset.IsZero() {
		return ErrNoAsset
	}

	if level > txengine.FeeLevelCustom {
		return fmt.Errorf("%w: %d", ErrInvalidFeeLevel, level)
	}

	return nil
}

// MemoryStore keeps preferences in memory. It is meant for tests and for
// wallets that do not persist preferences.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preference
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs: make(map[string]Preference),
		now:   time.Now,
	}
}

// FeeLevelFor returns the saved level for asset, or None.
func (s *MemoryStore) FeeLevelFor(_ context.Context,
	asset money.Asset) (fn.Option[txengine.FeeLevel], error) {

	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[asset.Code()]
	if !ok {
		return fn.None[txengine.FeeLevel](), nil
	}

	return fn.Some(pref.Level), nil
}

// SaveFeeLevel saves level for asset, replacing any earlier level.
func (s *MemoryStore) SaveFeeLevel(_ context.Context, asset money.Asset,
	level txengine.FeeLevel) error {

	if err := checkSave(asset, level); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[asset.Code()] = Preference{
		Asset:     asset.Code(),
		Level:     level,
		UpdatedAt: s.now().Truncate(time.Second),
	}

	return nil
}

// List returns every saved preference ordered by asset code.
func (s *MemoryStore) List(_ context.Context) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make([]Preference, 0, len(s.prefs))
	for _, pref := range s.prefs {
		prefs = append(prefs, pref)
	}

	sort.Slice(prefs, func(i, j int) bool {
		return prefs[i].Asset < prefs[j].Asset
	})

	return prefs, nil
}
