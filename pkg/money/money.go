// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package money

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when arithmetic or a comparison is
	// attempted between amounts of different assets.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrUnknownAsset is returned when an asset code is not part of the
	// registry.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrDivideByZero is returned when converting with a zero rate in the
	// inverse direction.
	ErrDivideByZero = errors.New("divide by zero")
)

// Money is an immutable amount of minor units (satoshi, wei, cents) of a
// single asset. The zero value is a zero amount of no asset.
type Money struct {
	minor *big.Int
	asset Asset
}

// Zero returns a zero amount of the given asset.
func Zero(asset Asset) Money {
	return Money{minor: new(big.Int), asset: asset}
}

// FromMinor creates an amount from an int64 count of minor units.
func FromMinor(asset Asset, minor int64) Money {
	return Money{minor: big.NewInt(minor), asset: asset}
}

// FromBig creates an amount from a big.Int count of minor units. The value
// is copied.
func FromBig(asset Asset, minor *big.Int) Money {
	if minor == nil {
		return Zero(asset)
	}

	return Money{minor: new(big.Int).Set(minor), asset: asset}
}

// FromMajor creates an amount from a decimal count of major units (BTC, ETH,
// EUR). Digits beyond the asset's precision are truncated.
func FromMajor(asset Asset, major decimal.Decimal) Money {
	minor := major.Shift(int32(asset.decimals)).Truncate(0).BigInt()

	return Money{minor: minor, asset: asset}
}

// value returns the minor units, treating a nil value as zero.
func (m Money) value() *big.Int {
	if m.minor == nil {
		return new(big.Int)
	}

	return m.minor
}

// Asset returns the asset the amount is denominated in.
func (m Money) Asset() Asset {
	return m.asset
}

// Minor returns a copy of the amount in minor units.
func (m Money) Minor() *big.Int {
	return new(big.Int).Set(m.value())
}

// ToMajor returns the amount in major units.
func (m Money) ToMajor() decimal.Decimal {
	return decimal.NewFromBigInt(m.value(), -int32(m.asset.decimals))
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.value().Sign() == 0
}

// IsNegative returns true if the amount is below zero.
func (m Money) IsNegative() bool {
	return m.value().Sign() < 0
}

// IsPositive returns true if the amount is above zero.
func (m Money) IsPositive() bool {
	return m.value().Sign() > 0
}

// sameAsset returns an error wrapping ErrCurrencyMismatch if the two amounts
// are of different assets.
func (m Money) sameAsset(other Money) error {
	if m.asset != other.asset {
		return fmt.Errorf("%w: %v vs %v", ErrCurrencyMismatch,
			m.asset, other.asset)
	}

	return nil
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameAsset(other); err != nil {
		return Money{}, err
	}

	sum := new(big.Int).Add(m.value(), other.value())

	return Money{minor: sum, asset: m.asset}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameAsset(other); err != nil {
		return Money{}, err
	}

	diff := new(big.Int).Sub(m.value(), other.value())

	return Money{minor: diff, asset: m.asset}, nil
}

// Cmp compares m and other and returns -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameAsset(other); err != nil {
		return 0, err
	}

	return m.value().Cmp(other.value()), nil
}

// Equal returns true if both amounts are of the same asset and value.
func (m Money) Equal(other Money) bool {
	return m.asset == other.asset && m.value().Cmp(other.value()) == 0
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) (Money, error) {
	cmp, err := m.Cmp(other)
	if err != nil {
		return Money{}, err
	}

	if cmp <= 0 {
		return m, nil
	}

	return other, nil
}

// ClampZero returns the amount, or zero if it is negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return Zero(m.asset)
	}

	return m
}

// Convert multiplies the amount by rate, expressed in major units of `to`
// per major unit of m's asset, and returns the result in `to`.
func (m Money) Convert(rate decimal.Decimal, to Asset) Money {
	return FromMajor(to, m.ToMajor().Mul(rate))
}

// ConvertInverse divides the amount by rate, expressed in major units of
// m's asset per major unit of `to`, and returns the result in `to`.
func (m Money) ConvertInverse(rate decimal.Decimal, to Asset) (Money, error) {
	if rate.IsZero() {
		return Money{}, fmt.Errorf("%w: converting %v to %v",
			ErrDivideByZero, m, to)
	}

	// Keep enough precision for the target's minor units before the
	// final truncation.
	precision := int32(to.decimals) + 8

	return FromMajor(to, m.ToMajor().DivRound(rate, precision)), nil
}

// ConvertInverseCeil is ConvertInverse rounded up to the next minor unit of
// `to`, so the result never falls below the exact quotient.
func (m Money) ConvertInverseCeil(rate decimal.Decimal,
	to Asset) (Money, error) {

	if rate.IsZero() {
		return Money{}, fmt.Errorf("%w: converting %v to %v",
			ErrDivideByZero, m, to)
	}

	major := m.ToMajor()
	q, r := major.QuoRem(rate, int32(to.decimals))
	converted := FromMajor(to, q)

	// A positive quotient with a remainder was truncated toward zero.
	if !r.IsZero() && major.Sign()*rate.Sign() > 0 {
		converted.minor.Add(converted.minor, big.NewInt(1))
	}

	return converted, nil
}

// String returns the amount in major units followed by the asset code.
func (m Money) String() string {
	return fmt.Sprintf("%s %s",
		m.ToMajor().StringFixed(int32(m.asset.decimals)), m.asset)
}
