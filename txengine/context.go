// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"time"

	"github.com/btcsuite/txengine/pkg/money"
)

// EngineContext is the engine-specific context carried in
// PendingTx.EngineState. The set of implementations is closed.
//
// Decorators that wrap another engine keep the wrapped engine's context in
// their own Leg field and hand it back when delegating, so each layer only
// ever sees the context it wrote.
type EngineContext interface {
	isEngineContext()
}

// OnChainContext is written by the on-chain engine when the fee asset is not
// the source asset.
type OnChainContext struct {
	// FeeBalance is the balance of the fee asset available to pay for
	// the transaction.
	FeeBalance money.Money
}

// ConversionContext is written by the sell and swap engines.
type ConversionContext struct {
	// UserTier is the user's KYC tier when limits were fetched.
	UserTier KycTier

	// QuoteID is the id of the quote that priced the limits.
	QuoteID string

	// Leg is the context of the wrapped engine, if any.
	Leg EngineContext
}

// InvoiceContext is written by the invoice payment engine.
type InvoiceContext struct {
	// InvoiceID is the id of the invoice being paid.
	InvoiceID string

	// Merchant is the display name of the payee.
	Merchant string

	// ExpiresAt is the end of the invoice's payment window.
	ExpiresAt time.Time

	// Leg is the context of the wrapped engine.
	Leg EngineContext
}

func (OnChainContext) isEngineContext()    {}
func (ConversionContext) isEngineContext() {}
func (InvoiceContext) isEngineContext()    {}

// legOf returns the wrapped engine's context stored by a decorator.
func legOf(ctx EngineContext) EngineContext {
	switch c := ctx.(type) {
	case ConversionContext:
		return c.Leg

	case InvoiceContext:
		return c.Leg

	default:
		return nil
	}
}

// unwrapLeg returns a copy of ptx carrying the wrapped engine's context, for
// handing to the wrapped engine.
func unwrapLeg(ptx PendingTx) PendingTx {
	ptx.EngineState = legOf(ptx.EngineState)

	return ptx
}

// rewrap returns inner with its context nested back under the decorator
// context of outer.
func rewrap(outer, inner PendingTx) PendingTx {
	switch c := outer.EngineState.(type) {
	case ConversionContext:
		c.Leg = inner.EngineState
		inner.EngineState = c

	case InvoiceContext:
		c.Leg = inner.EngineState
		inner.EngineState = c
	}

	return inner
}
