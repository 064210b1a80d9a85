// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// sortByAmount is a sortable list of coins ordered by value.
type sortByAmount []Coin

func (s sortByAmount) Len() int { return len(s) }
func (s sortByAmount) Less(i, j int) bool {
	return s[i].Value < s[j].Value
}
func (s sortByAmount) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// arrangeCoins drops the coins that cost more to spend than they are worth
// at the given rate and orders the rest largest first. The input is not
// modified.
func arrangeCoins(coins []Coin, feeSatPerKb btcutil.Amount) []Coin {
	eligible := make([]Coin, 0, len(coins))
	for _, coin := range coins {
		if !inputYieldsPositively(&coin.TxOut, feeSatPerKb) {
			continue
		}

		eligible = append(eligible, coin)
	}

	sort.Stable(sort.Reverse(sortByAmount(eligible)))

	return eligible
}

// inputYieldsPositively returns a boolean indicating whether this input
// yields positively if added to a transaction. This determination is based
// on the best-case added virtual size.
func inputYieldsPositively(credit *wire.TxOut,
	feeRatePerKb btcutil.Amount) bool {

	inputSize := txsizes.GetMinInputVirtualSize(credit.PkScript)
	inputFee := feeRatePerKb * btcutil.Amount(inputSize) / 1000

	return inputFee < btcutil.Amount(credit.Value)
}

// makeInputSource returns an input source that hands out the coins in
// order until the target is met.
func makeInputSource(eligible []Coin) txauthor.InputSource {
	// Current inputs and their total value. These are closed over by the
	// returned input source and reused across multiple calls.
	currentTotal := btcutil.Amount(0)
	currentInputs := make([]*wire.TxIn, 0, len(eligible))
	currentScripts := make([][]byte, 0, len(eligible))
	currentInputValues := make([]btcutil.Amount, 0, len(eligible))

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		for currentTotal < target && len(eligible) != 0 {
			nextCoin := eligible[0]
			prevOut := nextCoin.TxOut
			outpoint := nextCoin.OutPoint
			eligible = eligible[1:]

			nextInput := wire.NewTxIn(&outpoint, nil, nil)
			currentTotal += btcutil.Amount(prevOut.Value)

			currentInputs = append(currentInputs, nextInput)
			currentScripts = append(
				currentScripts, prevOut.PkScript,
			)
			currentInputValues = append(
				currentInputValues,
				btcutil.Amount(prevOut.Value),
			)
		}

		return currentTotal, currentInputs, currentInputValues,
			currentScripts, nil
	}
}

// inputCounts tallies the coins by script type the way the size estimator
// expects them.
type inputCounts struct {
	p2pkh, p2tr, p2wpkh, nested int
}

// countInputs classifies the coins by their previous output script.
func countInputs(coins []Coin) inputCounts {
	var counts inputCounts
	for _, coin := range coins {
		switch {
		case txscript.IsPayToWitnessPubKeyHash(coin.PkScript):
			counts.p2wpkh++

		case txscript.IsPayToTaproot(coin.PkScript):
			counts.p2tr++

		case txscript.IsPayToScriptHash(coin.PkScript):
			counts.nested++

		default:
			counts.p2pkh++
		}
	}

	return counts
}

// sweepFee returns the fee of a transaction spending every coin to the
// single output script without change.
func sweepFee(coins []Coin, pkScript []byte,
	feeSatPerKb btcutil.Amount) btcutil.Amount {

	if len(coins) == 0 {
		return 0
	}

	counts := countInputs(coins)
	out := wire.NewTxOut(0, pkScript)
	size := txsizes.EstimateVirtualSize(
		counts.p2pkh, counts.p2tr, counts.p2wpkh, counts.nested,
		[]*wire.TxOut{out}, 0,
	)

	return txrules.FeeForSerializeSize(feeSatPerKb, size)
}

// coinsTotal returns the sum of the coin values.
func coinsTotal(coins []Coin) btcutil.Amount {
	var total btcutil.Amount
	for _, coin := range coins {
		total += btcutil.Amount(coin.Value)
	}

	return total
}

// authoredFee returns the fee paid by an authored transaction.
func authoredFee(tx *txauthor.AuthoredTx) btcutil.Amount {
	var out btcutil.Amount
	for _, txOut := range tx.Tx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	return tx.TotalInput - out
}
