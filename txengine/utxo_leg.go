// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/txengine/pkg/feeunit"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultMaxFeeRate is the largest custom fee rate accepted unless the
// config says otherwise.
var DefaultMaxFeeRate = feeunit.NewSatPerVByte(1000)

// estimationScript is a P2WPKH script used to size outputs whose real
// script is not known yet.
var estimationScript = append(
	[]byte{txscript.OP_0, txscript.OP_DATA_20}, make([]byte, 20)...,
)

// UTXOConfig holds the collaborators of a UTXO chain engine.
type UTXOConfig struct {
	// Params are the parameters of the chain the engine sends on.
	Params *chaincfg.Params

	// Coins lists the spendable outputs of the source account.
	Coins CoinSource

	// Change hands out change scripts.
	Change ChangeSource

	// ChangeScriptSize is the size of the scripts handed out by Change.
	// It defaults to the P2WPKH script size.
	ChangeScriptSize int

	// Signer signs the authored transaction.
	Signer PsbtSigner

	// Publisher broadcasts the signed transaction.
	Publisher Publisher

	// MaxFeeRate caps custom fee rates. It defaults to
	// DefaultMaxFeeRate.
	MaxFeeRate feeunit.SatPerVByte

	// RelayFeePerKb is the minimum relay fee outputs are checked
	// against. It defaults to txrules.DefaultRelayFeePerKb.
	RelayFeePerKb btcutil.Amount
}

// NewBtcOnChainEngine creates an on-chain engine for a UTXO chain such as
// bitcoin. Fees are in sat/vB.
func NewBtcOnChainEngine(cfg OnChainConfig,
	utxo UTXOConfig) (*OnChainEngine, error) {

	if cfg.Asset.IsERC20() || cfg.Asset == money.ETH {
		return nil, fmt.Errorf("%w: %v is not a UTXO asset",
			ErrIllegalArgument, cfg.Asset)
	}

	switch {
	case utxo.Params == nil:
		return nil, fmt.Errorf("%w: chain params",
			errMissingCollaborator)

	case utxo.Coins == nil:
		return nil, fmt.Errorf("%w: coin source",
			errMissingCollaborator)

	case utxo.Change == nil:
		return nil, fmt.Errorf("%w: change source",
			errMissingCollaborator)

	case utxo.Signer == nil:
		return nil, fmt.Errorf("%w: signer", errMissingCollaborator)

	case utxo.Publisher == nil:
		return nil, fmt.Errorf("%w: publisher", errMissingCollaborator)
	}

	if utxo.ChangeScriptSize == 0 {
		utxo.ChangeScriptSize = txsizes.P2WPKHPkScriptSize
	}

	if utxo.MaxFeeRate.Equal(feeunit.ZeroSatPerVByte) {
		utxo.MaxFeeRate = DefaultMaxFeeRate
	}

	if utxo.RelayFeePerKb == 0 {
		utxo.RelayFeePerKb = txrules.DefaultRelayFeePerKb
	}

	return newOnChainEngine(cfg, &utxoLeg{asset: cfg.Asset, cfg: utxo})
}

// utxoLeg prices and builds transactions on a UTXO chain.
type utxoLeg struct {
	asset money.Asset
	cfg   UTXOConfig
}

// A compile-time assertion to ensure utxoLeg implements chainLeg.
var _ chainLeg = (*utxoLeg)(nil)

func (u *utxoLeg) feeAsset() money.Asset {
	return u.asset
}

func (u *utxoLeg) feeLevels() fn.Set[FeeLevel] {
	return FeeLevels(FeeLevelRegular, FeeLevelPriority, FeeLevelCustom)
}

// checkCustomFee rejects custom rates above the configured cap.
func (u *utxoLeg) checkCustomFee(customFee int64) error {
	rate := feeunit.NewSatPerVByte(btcutil.Amount(customFee))
	if rate.GreaterThan(u.cfg.MaxFeeRate) {
		return fmt.Errorf("%w: %v exceeds %v", ErrFeeRateTooLarge, rate,
			u.cfg.MaxFeeRate)
	}

	return nil
}

// feeRate returns the rate for the fee level in sat/kvB, the unit the
// authoring code works in.
func (u *utxoLeg) feeRate(req legRequest) (btcutil.Amount, error) {
	var rate feeunit.SatPerVByte
	switch req.level {
	case FeeLevelRegular:
		rate = feeunit.NewSatPerVByte(
			btcutil.Amount(req.opts.RegularFee),
		)

	case FeeLevelPriority:
		rate = feeunit.NewSatPerVByte(
			btcutil.Amount(req.opts.PriorityFee),
		)

	case FeeLevelCustom:
		if err := u.checkCustomFee(req.customFee); err != nil {
			return 0, err
		}

		rate = feeunit.NewSatPerVByte(btcutil.Amount(req.customFee))

	default:
		return 0, fmt.Errorf("%w: %v has no fee rate on %v",
			ErrIllegalFeeLevel, req.level, u.asset)
	}

	return rate.ToSatPerKVByte().Val(), nil
}

// checkAddress ensures the address decodes for the engine's network.
func (u *utxoLeg) checkAddress(address string) error {
	_, err := u.pkScript(address)

	return err
}

// pkScript returns the output script paying address.
func (u *utxoLeg) pkScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, u.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, address,
			err)
	}

	if !addr.IsForNet(u.cfg.Params) {
		return nil, fmt.Errorf("%w: %q is not a %s address",
			ErrInvalidAddress, address, u.cfg.Params.Name)
	}

	return txscript.PayToAddrScript(addr)
}

// estimationScriptFor returns the script paying address, or a P2WPKH
// stand-in if the address is not usable yet.
func (u *utxoLeg) estimationScriptFor(address string) []byte {
	script, err := u.pkScript(address)
	if err != nil {
		return estimationScript
	}

	return script
}

// limits returns the dust threshold of the target script and the total
// supply.
func (u *utxoLeg) limits(address string) (money.Money, money.Money) {
	script := u.estimationScriptFor(address)
	dust := mempool.GetDustThreshold(wire.NewTxOut(0, script))

	return money.FromMinor(u.asset, int64(dust)),
		money.FromMinor(u.asset, btcutil.MaxSatoshi)
}

// estimate prices a send. The available balance is what a sweep of every
// economical coin would deliver. If the coins cannot cover the amount, the
// sweep fee is reported so validation can flag the shortfall.
func (u *utxoLeg) estimate(ctx context.Context,
	req legRequest) (legEstimate, error) {

	feePerKb, err := u.feeRate(req)
	if err != nil {
		return legEstimate{}, err
	}

	coins, err := u.cfg.Coins.Coins(ctx)
	if err != nil {
		return legEstimate{}, fmt.Errorf("list coins: %w", err)
	}

	eligible := arrangeCoins(coins, feePerKb)
	script := u.estimationScriptFor(req.address)
	sweep := sweepFee(eligible, script, feePerKb)

	available := coinsTotal(eligible) - sweep
	if available < 0 {
		available = 0
	}

	est := legEstimate{
		fees:      money.Zero(u.asset),
		available: money.FromMinor(u.asset, int64(available)),
	}

	if !req.amount.IsPositive() {
		return est, nil
	}

	outputs := []*wire.TxOut{
		wire.NewTxOut(req.amount.Minor().Int64(), script),
	}
	change := &txauthor.ChangeSource{
		ScriptSize: u.cfg.ChangeScriptSize,
		NewScript: func() ([]byte, error) {
			return estimationScript, nil
		},
	}

	authored, err := txauthor.NewUnsignedTransaction(
		outputs, feePerKb, makeInputSource(eligible), change,
	)

	var inputErr txauthor.InputSourceError
	switch {
	case errors.As(err, &inputErr):
		est.fees = money.FromMinor(u.asset, int64(sweep))

	case err != nil:
		return legEstimate{}, fmt.Errorf("estimate fee: %w", err)

	default:
		est.fees = money.FromMinor(
			u.asset, int64(authoredFee(authored)),
		)
	}

	return est, nil
}

// build authors the transaction, has the signer sign it as a PSBT and
// extracts the final transaction.
func (u *utxoLeg) build(ctx context.Context, req legRequest,
	secondPassword string) (*PreparedTx, error) {

	feePerKb, err := u.feeRate(req)
	if err != nil {
		return nil, err
	}

	script, err := u.pkScript(req.address)
	if err != nil {
		return nil, err
	}

	output := wire.NewTxOut(req.amount.Minor().Int64(), script)
	if err := txrules.CheckOutput(output, u.cfg.RelayFeePerKb); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllegalArgument, err)
	}

	coins, err := u.cfg.Coins.Coins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coins: %w", err)
	}

	change := &txauthor.ChangeSource{
		ScriptSize: u.cfg.ChangeScriptSize,
		NewScript: func() ([]byte, error) {
			return u.cfg.Change.NewChangeScript(ctx)
		},
	}

	authored, err := txauthor.NewUnsignedTransaction(
		[]*wire.TxOut{output}, feePerKb,
		makeInputSource(arrangeCoins(coins, feePerKb)), change,
	)
	if err != nil {
		return nil, fmt.Errorf("author tx: %w", err)
	}

	authored.RandomizeChangePosition()

	packet, err := psbt.NewFromUnsignedTx(authored.Tx)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}

	for i := range packet.Inputs {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(
			int64(authored.PrevInputValues[i]),
			authored.PrevScripts[i],
		)
	}

	err = u.cfg.Signer.SignPsbt(ctx, packet, secondPassword)
	if err != nil {
		return nil, fmt.Errorf("sign psbt: %w", err)
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, fmt.Errorf("finalize psbt: %w", err)
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("extract tx: %w", err)
	}

	var raw bytes.Buffer
	if err := tx.Serialize(&raw); err != nil {
		return nil, fmt.Errorf("serialize tx: %w", err)
	}

	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	vsize := feeunit.NewWeightUnit(uint64(weight)).ToVB()

	log.Tracef("Authored tx: %v", newLogClosure(func() string {
		return fmt.Sprintf("%s (%v, fee %v)", tx.TxHash(), vsize,
			authoredFee(authored))
	}))

	return &PreparedTx{
		TxID:  tx.TxHash().String(),
		Raw:   raw.Bytes(),
		Fee:   money.FromMinor(u.asset, int64(authoredFee(authored))),
		VSize: int64(vsize.Uint64()),
		btcTx: tx,
	}, nil
}

// publish broadcasts the signed transaction.
func (u *utxoLeg) publish(ctx context.Context, tx *PreparedTx) error {
	if tx.btcTx == nil {
		return fmt.Errorf("%w: not a %v transaction",
			ErrIllegalArgument, u.asset)
	}

	return u.cfg.Publisher.Broadcast(ctx, tx.btcTx)
}
