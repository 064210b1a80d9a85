// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
)

// ValidationState is the outcome of validating a candidate amount. It is
// purely descriptive: invalid amounts are data, never errors.
type ValidationState uint8

const (
	// Uninitialised is the state of a freshly initialised pending tx.
	Uninitialised ValidationState = iota

	// CanExecute means the pending tx may be passed to DoExecute.
	CanExecute

	// UnderMinLimit means the amount is below the minimum limit.
	UnderMinLimit

	// OverMaxLimit means the amount is above the maximum limit.
	OverMaxLimit

	// InsufficientFunds means the source cannot cover the amount and
	// its fees.
	InsufficientFunds

	// PendingOrdersLimitReached means the user cannot open another
	// order until existing ones settle.
	PendingOrdersLimitReached

	// UnknownError means the amount could not be judged, usually because
	// the limits are not known yet.
	UnknownError
)

// String returns the string representation of a validation state.
func (v ValidationState) String() string {
	switch v {
	case Uninitialised:
		return "UNINITIALISED"

	case CanExecute:
		return "CAN_EXECUTE"

	case UnderMinLimit:
		return "UNDER_MIN_LIMIT"

	case OverMaxLimit:
		return "OVER_MAX_LIMIT"

	case InsufficientFunds:
		return "INSUFFICIENT_FUNDS"

	case PendingOrdersLimitReached:
		return "PENDING_ORDERS_LIMIT_REACHED"

	case UnknownError:
		return "UNKNOWN_ERROR"

	default:
		return "unknown validation state"
	}
}

// validateAmount evaluates the amount of ptx in a fixed priority order:
// unknown limits, minimum, maximum, then balance. Limits and balances must
// be in the amount's asset; a mismatch is a wiring bug and is returned as an
// error.
func validateAmount(ptx PendingTx) (ValidationState, error) {
	if ptx.MinLimit.IsNone() || ptx.MaxLimit.IsNone() {
		return UnknownError, nil
	}

	minLimit := ptx.MinLimit.UnwrapOr(money.Money{})
	cmp, err := ptx.Amount.Cmp(minLimit)
	if err != nil {
		return 0, fmt.Errorf("%w: min limit: %w", ErrAssetMismatch, err)
	}
	if cmp < 0 {
		return UnderMinLimit, nil
	}

	maxLimit := ptx.MaxLimit.UnwrapOr(money.Money{})
	cmp, err = ptx.Amount.Cmp(maxLimit)
	if err != nil {
		return 0, fmt.Errorf("%w: max limit: %w", ErrAssetMismatch, err)
	}
	if cmp > 0 {
		return OverMaxLimit, nil
	}

	cmp, err = ptx.Amount.Cmp(ptx.AvailableBalance)
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %w", ErrAssetMismatch, err)
	}
	if cmp > 0 {
		return InsufficientFunds, nil
	}

	return CanExecute, nil
}

// validated runs validateAmount and returns a copy of ptx whose only change
// is the validation state.
func validated(ptx PendingTx) (PendingTx, error) {
	state, err := validateAmount(ptx)
	if err != nil {
		return PendingTx{}, err
	}

	ptx.ValidationState = state

	return ptx, nil
}
