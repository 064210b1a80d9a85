// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// WeightUnit is a transaction size in weight units: base size * 3 + total
// size, as defined by BIP141.
type WeightUnit struct {
	wu uint64
}

// NewWeightUnit creates a size of the given weight units.
func NewWeightUnit(wu uint64) WeightUnit {
	return WeightUnit{wu: wu}
}

// ToVB converts the weight to virtual bytes, rounding up.
func (w WeightUnit) ToVB() VByte {
	vb := (w.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor

	return NewVByte(vb)
}

// String returns the size in wu.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", w.wu)
}

// VByte is a transaction size in virtual bytes, a quarter of its weight.
type VByte struct {
	wu uint64
}

// NewVByte creates a size of the given virtual bytes.
func NewVByte(vb uint64) VByte {
	return VByte{wu: vb * blockchain.WitnessScaleFactor}
}

// ToWU converts the size to weight units.
func (v VByte) ToWU() WeightUnit {
	return WeightUnit{wu: v.wu}
}

// Uint64 returns the size in whole virtual bytes.
func (v VByte) Uint64() uint64 {
	return v.wu / blockchain.WitnessScaleFactor
}

// String returns the size in vb.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.Uint64())
}
