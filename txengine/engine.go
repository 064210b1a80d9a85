// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txengine builds, validates and executes transactions from one
// source account to one target.
//
// A caller picks the engine for a source and target, calls Start once, then
// drives the engine through its lifecycle:
//
//	DoInitialiseTx -> DoUpdateAmount / DoUpdateFeeLevel ->
//		DoValidateAmount
//	-> DoBuildConfirmations -> DoExecute
//
// Every step returns a new PendingTx and leaves its input untouched. A
// failed step returns an error and no PendingTx, so the caller keeps its
// last good snapshot. Engines are single-owner: one caller drives one
// engine, and Stop tears it down.
package txengine

import (
	"context"
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
)

// TxEngine is implemented by every engine.
type TxEngine interface {
	// Start binds the engine to a source, a target and the exchange
	// rates. It must be called exactly once, before anything else. It
	// panics if the source or target is not one the engine can serve,
	// before any other side effect.
	Start(source Account, target Target, rates ExchangeRates)

	// AssertInputsValid re-checks the Start preconditions. Decorators
	// check their wrapped engine first.
	AssertInputsValid() error

	// SourceAsset is the asset of the bound source.
	SourceAsset() money.Asset

	// DoInitialiseTx fetches balances, fee levels and limits and returns
	// a zero-amount pending tx.
	DoInitialiseTx(ctx context.Context) (PendingTx, error)

	// DoUpdateAmount sets a new amount and recomputes the fees. It never
	// changes the fee level or the limits.
	DoUpdateAmount(ctx context.Context, amount money.Money,
		ptx PendingTx) (PendingTx, error)

	// DoUpdateFeeLevel selects a new fee level. It fails with
	// ErrIllegalFeeLevel for levels outside ptx.AvailableFeeLevels and
	// with ErrIllegalArgument for a custom level without a fee.
	DoUpdateFeeLevel(ctx context.Context, ptx PendingTx, level FeeLevel,
		customFee int64) (PendingTx, error)

	// DoValidateAmount returns ptx with only its validation state
	// updated.
	DoValidateAmount(ctx context.Context, ptx PendingTx) (PendingTx,
		error)

	// DoBuildConfirmations returns ptx with the summary rows shown to
	// the user before execution.
	DoBuildConfirmations(ctx context.Context, ptx PendingTx) (PendingTx,
		error)

	// DoExecute moves the funds. It fails with ErrNotExecutable unless
	// ptx last validated to CanExecute.
	DoExecute(ctx context.Context, ptx PendingTx,
		secondPassword string) (TxResult, error)

	// Stop releases the engine's resources. It is idempotent and safe to
	// call before Start.
	Stop()
}

// checkExecutable rejects pending txs that did not validate.
func checkExecutable(ptx PendingTx) error {
	if ptx.ValidationState != CanExecute {
		return fmt.Errorf("%w: state is %v", ErrNotExecutable,
			ptx.ValidationState)
	}

	return nil
}
