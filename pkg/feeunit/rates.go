// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feeunit provides the fee-rate and transaction-size units used to
// price on-chain transfers: satoshis per virtual byte for UTXO chains and
// wei per gas for EVM chains.
package feeunit

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	kilo = 1000

	// ratePrecision is the number of decimal places used when rendering a
	// rate, so that 1 sat/kvb still shows up as 0.001 sat/vb.
	ratePrecision = 3
)

// ZeroSatPerVByte is a fee rate of 0 sat/vb.
var ZeroSatPerVByte = NewSatPerVByte(0)

// satRate is the canonical form of every UTXO fee rate: satoshis per
// kilo-weight-unit, kept as a rational so unit conversions never round.
type satRate struct {
	perKWU *big.Rat
}

func newSatRate(fee btcutil.Amount, wu uint64) satRate {
	if wu == 0 {
		return satRate{perKWU: new(big.Rat)}
	}

	num := new(big.Int).Mul(big.NewInt(int64(fee)), big.NewInt(kilo))
	denom := new(big.Int).SetUint64(wu)

	return satRate{perKWU: new(big.Rat).SetFrac(num, denom)}
}

// rat returns the rate, treating an unset rate as zero.
func (r satRate) rat() *big.Rat {
	if r.perKWU == nil {
		return new(big.Rat)
	}

	return r.perKWU
}

// feeFor returns the fee for the given weight, truncated or rounded up to
// the next satoshi.
func (r satRate) feeFor(wu WeightUnit, roundUp bool) btcutil.Amount {
	fee := new(big.Rat).Mul(r.rat(), big.NewRat(capInt64(wu.wu), kilo))

	num, denom := fee.Num(), fee.Denom()
	if roundUp {
		num = new(big.Int).Add(num, denom)
		num.Sub(num, big.NewInt(1))
	}

	return btcutil.Amount(new(big.Int).Div(num, denom).Int64())
}

func (r satRate) cmp(other satRate) int {
	return r.rat().Cmp(other.rat())
}

// SatPerVByte is a fee rate in satoshis per virtual byte, the unit fee
// oracles quote in.
type SatPerVByte struct {
	satRate
}

// NewSatPerVByte creates a rate of the given satoshis per vbyte.
func NewSatPerVByte(sats btcutil.Amount) SatPerVByte {
	return SatPerVByte{newSatRate(sats, NewVByte(1).wu)}
}

// FeeForVByte returns the fee, rounded down, for a transaction of the given
// virtual size.
func (s SatPerVByte) FeeForVByte(vb VByte) btcutil.Amount {
	return s.feeFor(vb.ToWU(), false)
}

// FeeForVByteRoundUp returns the fee, rounded up, for a transaction of the
// given virtual size.
func (s SatPerVByte) FeeForVByteRoundUp(vb VByte) btcutil.Amount {
	return s.feeFor(vb.ToWU(), true)
}

// ToSatPerKVByte converts the rate to sat/kvb.
func (s SatPerVByte) ToSatPerKVByte() SatPerKVByte {
	return SatPerKVByte{s.satRate}
}

// GreaterThan returns true if s is a higher rate than other.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool {
	return s.cmp(other.satRate) > 0
}

// LessThan returns true if s is a lower rate than other.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.cmp(other.satRate) < 0
}

// Equal returns true if both rates are the same.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.cmp(other.satRate) == 0
}

// String renders the rate in sat/vb.
func (s SatPerVByte) String() string {
	vb := new(big.Rat).Mul(
		s.rat(), big.NewRat(blockchain.WitnessScaleFactor, kilo),
	)

	return vb.FloatString(ratePrecision) + " sat/vb"
}

// SatPerKVByte is a fee rate in satoshis per kilo virtual byte, the unit the
// txauthor and txrules packages work in.
type SatPerKVByte struct {
	satRate
}

// NewSatPerKVByte creates a rate of the given satoshis per kvbyte.
func NewSatPerKVByte(sats btcutil.Amount) SatPerKVByte {
	return SatPerKVByte{newSatRate(sats, NewVByte(kilo).wu)}
}

// Val returns the rate as a satoshi amount per kvbyte, truncated.
func (s SatPerKVByte) Val() btcutil.Amount {
	kvb := new(big.Rat).Mul(
		s.rat(), big.NewRat(blockchain.WitnessScaleFactor, 1),
	)

	return btcutil.Amount(new(big.Int).Quo(kvb.Num(), kvb.Denom()).Int64())
}

// ToSatPerVByte converts the rate to sat/vb.
func (s SatPerKVByte) ToSatPerVByte() SatPerVByte {
	return SatPerVByte{s.satRate}
}

// String renders the rate in sat/kvb.
func (s SatPerKVByte) String() string {
	kvb := new(big.Rat).Mul(
		s.rat(), big.NewRat(blockchain.WitnessScaleFactor, 1),
	)

	return kvb.FloatString(ratePrecision) + " sat/kvb"
}

// capInt64 converts to int64, capping at math.MaxInt64. Sizes are bounded by
// consensus so the cap is never reached in practice.
func capInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
