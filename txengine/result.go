// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
)

// TxResult is the outcome of a successful DoExecute. It is either a
// HashedResult or an UnHashedResult.
type TxResult interface {
	// SentAmount is the amount that left the source account.
	SentAmount() money.Money

	isTxResult()
}

// HashedResult is returned when the settlement rail identifies the transfer
// by a transaction id.
type HashedResult struct {
	TxID   string
	Amount money.Money
}

// UnHashedResult is returned when the rail only acknowledges the request,
// such as a custodial order or a bank withdrawal.
type UnHashedResult struct {
	Amount money.Money

	// OrderID is the rail's reference for the request, if it returned
	// one.
	OrderID string
}

// SentAmount returns the amount that left the source account.
func (h HashedResult) SentAmount() money.Money { return h.Amount }

// SentAmount returns the amount that left the source account.
func (u UnHashedResult) SentAmount() money.Money { return u.Amount }

func (HashedResult) isTxResult()   {}
func (UnHashedResult) isTxResult() {}

// String returns a human readable summary of the result.
func (h HashedResult) String() string {
	return fmt.Sprintf("sent %v in tx %s", h.Amount, h.TxID)
}

// String returns a human readable summary of the result.
func (u UnHashedResult) String() string {
	if u.OrderID == "" {
		return fmt.Sprintf("sent %v", u.Amount)
	}

	return fmt.Sprintf("sent %v in order %s", u.Amount, u.OrderID)
}
