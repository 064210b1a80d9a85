// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/shopspring/decimal"
)

// ConfirmationKind identifies a summary row.
type ConfirmationKind uint8

const (
	ConfirmFrom ConfirmationKind = iota
	ConfirmTo
	ConfirmAmount
	ConfirmFee
	ConfirmTotal
	ConfirmRate
	ConfirmInvoice
	ConfirmExpiry
)

// String returns the string representation of a confirmation kind.
func (c ConfirmationKind) String() string {
	switch c {
	case ConfirmFrom:
		return "from"

	case ConfirmTo:
		return "to"

	case ConfirmAmount:
		return "amount"

	case ConfirmFee:
		return "fee"

	case ConfirmTotal:
		return "total"

	case ConfirmRate:
		return "rate"

	case ConfirmInvoice:
		return "invoice"

	case ConfirmExpiry:
		return "expiry"

	default:
		return "unknown"
	}
}

// ConfirmationItem is one user-facing summary row.
type ConfirmationItem struct {
	Kind  ConfirmationKind
	Label string
	Value string
}

// transferConfirmations returns the rows shared by every engine: source,
// target, amount, fee and, when the fee is paid in the source asset, the
// total.
func transferConfirmations(source Account, target Target, feeLabel string,
	ptx PendingTx) []ConfirmationItem {

	items := []ConfirmationItem{
		{Kind: ConfirmFrom, Label: "From", Value: source.Label()},
		{Kind: ConfirmTo, Label: "To", Value: target.Label()},
		{
			Kind: ConfirmAmount, Label: "Amount",
			Value: ptx.Amount.String(),
		},
		{Kind: ConfirmFee, Label: feeLabel, Value: ptx.Fees.String()},
	}

	if total, err := ptx.Amount.Add(ptx.Fees); err == nil {
		items = append(items, ConfirmationItem{
			Kind: ConfirmTotal, Label: "Total",
			Value: total.String(),
		})
	}

	return items
}

// rateConfirmation returns an exchange rate row.
func rateConfirmation(pair money.Pair, price decimal.Decimal) ConfirmationItem {
	return ConfirmationItem{
		Kind:  ConfirmRate,
		Label: "Exchange rate",
		Value: fmt.Sprintf("1 %s = %s %s", pair.Source.Code(),
			price.String(), pair.Target.Code()),
	}
}
