// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"errors"
	"fmt"
)

// Programmer errors. These indicate a wiring bug in the caller and are not
// expected to be recovered from at runtime.
var (
	// ErrEngineNotStarted is returned when an engine is used before Start
	// bound it to a source and target.
	ErrEngineNotStarted = errors.New("engine not started")

	// ErrEngineAlreadyStarted is the panic value when Start is called a
	// second time on the same engine.
	ErrEngineAlreadyStarted = errors.New("engine already started")

	// ErrEngineStopped is returned when an engine is used after Stop.
	ErrEngineStopped = errors.New("engine stopped")

	// ErrAssetMismatch is returned when the source, target or pending tx
	// asset does not match what the engine was built for.
	ErrAssetMismatch = errors.New("asset mismatch")

	// ErrInvalidSource is returned when the source account is of a kind
	// the engine cannot move funds from.
	ErrInvalidSource = errors.New("invalid source account")

	// ErrInvalidTarget is returned when the target is of a kind the
	// engine cannot move funds to.
	ErrInvalidTarget = errors.New("invalid transaction target")

	// ErrIllegalFeeLevel is returned when a fee level outside the legal
	// set of the engine is requested.
	ErrIllegalFeeLevel = errors.New("illegal fee level")

	// ErrIllegalArgument is returned when an argument is inconsistent
	// with the rest of the request, such as a negative custom fee.
	ErrIllegalArgument = errors.New("illegal argument")

	// ErrNotExecutable is returned when DoExecute is called with a pending
	// tx whose last validation did not end in CAN_EXECUTE.
	ErrNotExecutable = errors.New("pending tx is not executable")
)

// Recoverable errors, surfaced to the caller as failed operations.
var (
	// ErrPendingOrdersLimitReached is returned by the limit service or a
	// quote provider when the user cannot open another order. Conversion
	// engines turn it into the PENDING_ORDERS_LIMIT_REACHED state.
	ErrPendingOrdersLimitReached = errors.New(
		"pending orders limit reached",
	)

	// ErrInvoiceExpired is returned when paying an invoice whose payment
	// window has closed.
	ErrInvoiceExpired = errors.New("invoice expired")

	// ErrFeeRateTooLarge is returned when a custom fee rate exceeds the
	// configured sanity cap.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrInvalidAddress is returned when a target address cannot be used
	// on the engine's chain.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrMissingDepositAddress is returned when a custodial order comes
	// back without the address the on-chain leg must pay.
	ErrMissingDepositAddress = errors.New("order has no deposit address")
)

// precondition panics with err. It is used by Start, which binds an engine
// and has no way of reporting a wiring bug other than failing loudly.
func precondition(err error) {
	if err != nil {
		panic(fmt.Errorf("txengine precondition failed: %w", err))
	}
}
