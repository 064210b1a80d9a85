// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
)

// Custody describes who holds the keys of an account.
type Custody uint8

const (
	// CustodyNonCustodial is an account whose keys live in the wallet.
	CustodyNonCustodial Custody = iota

	// CustodyTrading is a crypto balance held by the custodial ledger.
	CustodyTrading

	// CustodyFiat is a fiat balance held by the custodial ledger.
	CustodyFiat
)

// String returns the string representation of a custody kind.
func (c Custody) String() string {
	switch c {
	case CustodyNonCustodial:
		return "non-custodial"

	case CustodyTrading:
		return "trading"

	case CustodyFiat:
		return "fiat"

	default:
		return "unknown custody"
	}
}

// BalanceOracle supplies the balances of one account in the account's
// asset.
type BalanceOracle interface {
	// AccountBalance returns the total balance, including funds that are
	// not yet spendable.
	AccountBalance(ctx context.Context) (money.Money, error)

	// ActionableBalance returns the balance that may be moved right now.
	ActionableBalance(ctx context.Context) (money.Money, error)
}

// Account is a funding source.
type Account interface {
	BalanceOracle

	// Asset is the asset held by the account.
	Asset() money.Asset

	// Custody reports who holds the account's keys.
	Custody() Custody

	// Label is a display name.
	Label() string
}

// Target is a destination for funds.
type Target interface {
	// Asset is the asset the target expects to receive.
	Asset() money.Asset

	// Label is a display name.
	Label() string
}

// CryptoTarget is a target that can be paid on-chain.
type CryptoTarget interface {
	Target

	// ReceiveAddress is the on-chain address to pay.
	ReceiveAddress() string
}

// BankTarget is a linked bank account that fiat can be withdrawn to.
type BankTarget interface {
	Target

	// WithdrawalFeeAndMinLimit returns the bank rail's flat fee and the
	// smallest amount it accepts.
	WithdrawalFeeAndMinLimit(ctx context.Context) (money.Money, money.Money,
		error)

	// ReceiveAddress returns the bank account reference the withdrawal
	// is sent to.
	ReceiveAddress(ctx context.Context) (string, error)
}

// AddressTarget is a plain on-chain address.
type AddressTarget struct {
	asset   money.Asset
	address string
	label   string
}

// NewAddressTarget creates a target paying address in asset.
func NewAddressTarget(asset money.Asset, address,
	label string) *AddressTarget {

	return &AddressTarget{asset: asset, address: address, label: label}
}

// Asset returns the asset the address receives.
func (a *AddressTarget) Asset() money.Asset { return a.asset }

// Label returns the display name, falling back to the address.
func (a *AddressTarget) Label() string {
	if a.label == "" {
		return a.address
	}

	return a.label
}

// ReceiveAddress returns the address.
func (a *AddressTarget) ReceiveAddress() string { return a.address }

// InvoiceTarget is a merchant invoice with a fixed amount and a payment
// window.
type InvoiceTarget struct {
	// InvoiceID is the invoice id assigned by the payment processor.
	InvoiceID string

	// Amount is the exact amount the invoice must be paid with.
	Amount money.Money

	// Address is the on-chain address the invoice pays to.
	Address string

	// ExpiresAt is the end of the payment window.
	ExpiresAt time.Time

	// Merchant is the display name of the payee.
	Merchant string
}

// Asset returns the asset the invoice is denominated in.
func (i *InvoiceTarget) Asset() money.Asset { return i.Amount.Asset() }

// Label returns the merchant and invoice id.
func (i *InvoiceTarget) Label() string {
	return fmt.Sprintf("%s (invoice %s)", i.Merchant, i.InvoiceID)
}

// ReceiveAddress returns the invoice's payment address.
func (i *InvoiceTarget) ReceiveAddress() string { return i.Address }

// Expired reports whether the payment window closed before now.
func (i *InvoiceTarget) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// AccountTarget is another account of the same user, such as a custodial
// trading or fiat account.
type AccountTarget struct {
	Account Account
}

// Asset returns the asset of the receiving account.
func (a *AccountTarget) Asset() money.Asset { return a.Account.Asset() }

// Label returns the receiving account's label.
func (a *AccountTarget) Label() string { return a.Account.Label() }

// A compile-time assertion to ensure the targets satisfy their interfaces.
var (
	_ CryptoTarget = (*AddressTarget)(nil)
	_ CryptoTarget = (*InvoiceTarget)(nil)
	_ Target       = (*AccountTarget)(nil)
)
