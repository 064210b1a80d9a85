// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PendingTx describes one in-progress transaction attempt. It is a value
// type: every pipeline step returns a fresh copy and never mutates the input.
//
// Amount, TotalBalance and AvailableBalance are in the source asset. Fees
// are in the engine's fee asset, which differs from the source asset for
// token transfers. MinLimit and MaxLimit are in the source asset once known.
type PendingTx struct {
	// Amount is the amount the user intends to move.
	Amount money.Money

	// TotalBalance is the source account balance at initialisation.
	TotalBalance money.Money

	// AvailableBalance is the part of TotalBalance that can be spent
	// after fees. It never exceeds TotalBalance.
	AvailableBalance money.Money

	// Fees is the network or processing fee for the current amount and
	// fee level.
	Fees money.Money

	// FeeLevel is the selected fee tier.
	FeeLevel FeeLevel

	// AvailableFeeLevels is the set of tiers legal for this engine and
	// account.
	AvailableFeeLevels fn.Set[FeeLevel]

	// CustomFeeAmount is the user-chosen fee rate when FeeLevel is
	// FeeLevelCustom, CustomFeeUnset otherwise.
	CustomFeeAmount int64

	// MinLimit is the smallest amount that may be sent. None means the
	// limit is not known yet.
	MinLimit fn.Option[money.Money]

	// MaxLimit is the largest amount that may be sent. None means the
	// limit is not known yet.
	MaxLimit fn.Option[money.Money]

	// SelectedFiat is the display currency. It takes no part in
	// validation.
	SelectedFiat money.Asset

	// ValidationState is the result of the last validation.
	ValidationState ValidationState

	// EngineState carries engine-specific context. It is nil for engines
	// that need none.
	EngineState EngineContext

	// Confirmations holds the summary rows built by DoBuildConfirmations.
	Confirmations []ConfirmationItem
}

// newPendingTx returns a zero-amount pending tx for the given source and fee
// assets.
func newPendingTx(source, feeAsset money.Asset) PendingTx {
	return PendingTx{
		Amount:             money.Zero(source),
		TotalBalance:       money.Zero(source),
		AvailableBalance:   money.Zero(source),
		Fees:               money.Zero(feeAsset),
		FeeLevel:           FeeLevelNone,
		AvailableFeeLevels: FeeLevels(FeeLevelNone),
		CustomFeeAmount:    CustomFeeUnset,
		MinLimit:           fn.None[money.Money](),
		MaxLimit:           fn.None[money.Money](),
		ValidationState:    Uninitialised,
	}
}

// invalidated returns ptx as it stands after a change to its amount or fee:
// the last validation no longer holds and the confirmation rows are stale.
// PendingOrdersLimitReached is terminal and survives.
func invalidated(ptx PendingTx) PendingTx {
	if ptx.ValidationState != PendingOrdersLimitReached {
		ptx.ValidationState = Uninitialised
	}
	ptx.Confirmations = nil

	return ptx
}

// checkAmountAsset ensures an amount handed to an engine is in the engine's
// source asset.
func checkAmountAsset(amount money.Money, source money.Asset) error {
	if amount.Asset() != source {
		return fmt.Errorf("%w: amount is in %v, engine sends %v",
			ErrAssetMismatch, amount.Asset(), source)
	}

	return nil
}

// String returns a one-line summary of the pending tx.
func (p PendingTx) String() string {
	return fmt.Sprintf("amount=%v, fees=%v, available=%v, level=%v, "+
		"state=%v", p.Amount, p.Fees, p.AvailableBalance, p.FeeLevel,
		p.ValidationState)
}
