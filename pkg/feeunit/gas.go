// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeunit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Gas is an EVM gas limit.
type Gas uint64

// WeiPerGas is an EVM gas price.
type WeiPerGas struct {
	wei *big.Int
}

// NewWeiPerGas creates a gas price of the given wei.
func NewWeiPerGas(wei *big.Int) WeiPerGas {
	if wei == nil {
		return WeiPerGas{wei: new(big.Int)}
	}

	return WeiPerGas{wei: new(big.Int).Set(wei)}
}

// NewGweiPerGas creates a gas price from a gwei quote, the unit fee oracles
// report in.
func NewGweiPerGas(gwei uint64) WeiPerGas {
	wei := new(big.Int).SetUint64(gwei)
	wei.Mul(wei, big.NewInt(params.GWei))

	return WeiPerGas{wei: wei}
}

// Wei returns a copy of the price in wei.
func (w WeiPerGas) Wei() *big.Int {
	if w.wei == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(w.wei)
}

// FeeForGas returns the fee in wei for the given gas limit.
func (w WeiPerGas) FeeForGas(gas Gas) *big.Int {
	return new(big.Int).Mul(w.Wei(), new(big.Int).SetUint64(uint64(gas)))
}

// GreaterThan returns true if w is a higher price than other.
func (w WeiPerGas) GreaterThan(other WeiPerGas) bool {
	return w.Wei().Cmp(other.Wei()) > 0
}

// String renders the price in gwei.
func (w WeiPerGas) String() string {
	gwei := new(big.Rat).SetFrac(w.Wei(), big.NewInt(params.GWei))

	return gwei.FloatString(ratePrecision) + " gwei"
}

// String renders the gas limit.
func (g Gas) String() string {
	return fmt.Sprintf("%d gas", uint64(g))
}
