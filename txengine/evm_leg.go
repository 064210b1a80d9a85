// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/txengine/pkg/feeunit"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultTokenGasLimit is the gas limit of a token transfer when the fee
// oracle does not report one.
const DefaultTokenGasLimit feeunit.Gas = 65_000

// erc20ABI is the part of the ERC20 interface the engine calls.
const erc20ABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// EVMConfig holds the collaborators of an EVM chain engine.
type EVMConfig struct {
	// From is the address of the source account.
	From common.Address

	// Backend reads nonces and broadcasts transactions.
	Backend EVMBackend

	// Signer signs transactions for From.
	Signer EVMSigner

	// FeeAccount supplies the ether balance that pays for token
	// transfers. It is required for tokens and ignored for ether.
	FeeAccount BalanceOracle
}

// NewEvmOnChainEngine creates an on-chain engine for ether or an ERC20
// token. Fees are gas prices in gwei and are always paid in ether.
func NewEvmOnChainEngine(cfg OnChainConfig,
	evm EVMConfig) (*OnChainEngine, error) {

	if cfg.Asset != money.ETH && !cfg.Asset.IsERC20() {
		return nil, fmt.Errorf("%w: %v is not an EVM asset",
			ErrIllegalArgument, cfg.Asset)
	}

	switch {
	case evm.Backend == nil:
		return nil, fmt.Errorf("%w: backend", errMissingCollaborator)

	case evm.Signer == nil:
		return nil, fmt.Errorf("%w: signer", errMissingCollaborator)

	case cfg.Asset.IsERC20() && evm.FeeAccount == nil:
		return nil, fmt.Errorf("%w: fee account for %v",
			errMissingCollaborator, cfg.Asset)
	}

	if cfg.Asset.IsERC20() && !common.IsHexAddress(cfg.Asset.Contract()) {
		return nil, fmt.Errorf("%w: %v contract %q", ErrInvalidAddress,
			cfg.Asset, cfg.Asset.Contract())
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return newOnChainEngine(cfg, &evmLeg{
		asset: cfg.Asset,
		cfg:   evm,
		erc20: parsed,
	})
}

// evmLeg prices and builds transactions on an EVM chain.
type evmLeg struct {
	asset money.Asset
	cfg   EVMConfig
	erc20 abi.ABI
}

// A compile-time assertion to ensure evmLeg implements chainLeg.
var _ chainLeg = (*evmLeg)(nil)

func (e *evmLeg) feeAsset() money.Asset {
	return money.ETH
}

func (e *evmLeg) feeLevels() fn.Set[FeeLevel] {
	return FeeLevels(FeeLevelRegular, FeeLevelPriority)
}

func (e *evmLeg) checkCustomFee(int64) error {
	return fmt.Errorf("%w: %v has no custom fees", ErrIllegalFeeLevel,
		e.asset)
}

func (e *evmLeg) checkAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return nil
}

// limits allows any positive amount a uint256 can hold.
func (e *evmLeg) limits(string) (money.Money, money.Money) {
	return money.FromMinor(e.asset, 1),
		money.FromBig(e.asset, math.MaxBig256)
}

// gasPrice returns the gas price of a fee level.
func (e *evmLeg) gasPrice(req legRequest) (feeunit.WeiPerGas, error) {
	switch req.level {
	case FeeLevelRegular:
		return feeunit.NewGweiPerGas(req.opts.RegularFee), nil

	case FeeLevelPriority:
		return feeunit.NewGweiPerGas(req.opts.PriorityFee), nil

	default:
		return feeunit.WeiPerGas{}, fmt.Errorf("%w: %v has no gas "+
			"price on %v", ErrIllegalFeeLevel, req.level, e.asset)
	}
}

// gasLimit returns the gas limit of a transfer.
func (e *evmLeg) gasLimit(opts FeeOptions) feeunit.Gas {
	if e.asset.IsERC20() {
		if opts.GasLimitContract == 0 {
			return DefaultTokenGasLimit
		}

		return feeunit.Gas(opts.GasLimitContract)
	}

	if opts.GasLimit == 0 {
		return feeunit.Gas(params.TxGas)
	}

	return feeunit.Gas(opts.GasLimit)
}

// estimate prices a transfer. Ether transfers pay the fee out of the sent
// balance; token transfers pay it out of the ether fee account, whose
// balance is recorded for validation.
func (e *evmLeg) estimate(ctx context.Context,
	req legRequest) (legEstimate, error) {

	price, err := e.gasPrice(req)
	if err != nil {
		return legEstimate{}, err
	}

	gas := e.gasLimit(req.opts)
	fees := money.FromBig(money.ETH, price.FeeForGas(gas))

	if !e.asset.IsERC20() {
		available, err := req.actionable.Sub(fees)
		if err != nil {
			return legEstimate{}, err
		}

		est := legEstimate{fees: fees, available: available.ClampZero()}

		return est, nil
	}

	feeBalance, err := e.cfg.FeeAccount.ActionableBalance(ctx)
	if err != nil {
		return legEstimate{}, fmt.Errorf("fetch fee balance: %w", err)
	}

	if feeBalance.Asset() != money.ETH {
		return legEstimate{}, fmt.Errorf("%w: fee account holds %v",
			ErrAssetMismatch, feeBalance.Asset())
	}

	return legEstimate{
		fees:      fees,
		available: req.actionable,
		state:     OnChainContext{FeeBalance: feeBalance},
	}, nil
}

// build creates and signs the transfer. Token transfers call the contract's
// transfer method.
func (e *evmLeg) build(ctx context.Context, req legRequest,
	secondPassword string) (*PreparedTx, error) {

	price, err := e.gasPrice(req)
	if err != nil {
		return nil, err
	}

	if err := e.checkAddress(req.address); err != nil {
		return nil, err
	}

	nonce, err := e.cfg.Backend.PendingNonceAt(ctx, e.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	var (
		to    = common.HexToAddress(req.address)
		value = req.amount.Minor()
		gas   = e.gasLimit(req.opts)
		data  []byte
	)

	if e.asset.IsERC20() {
		data, err = e.erc20.Pack("transfer", to, value)
		if err != nil {
			return nil, fmt.Errorf("pack transfer: %w", err)
		}

		to = common.HexToAddress(e.asset.Contract())
		value = new(big.Int)
	}

	tx := types.NewTransaction(
		nonce, to, value, uint64(gas), price.Wei(), data,
	)

	signed, err := e.cfg.Signer.SignTx(ctx, tx, secondPassword)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode tx: %w", err)
	}

	return &PreparedTx{
		TxID:  signed.Hash().Hex(),
		Raw:   raw,
		Fee:   money.FromBig(money.ETH, price.FeeForGas(gas)),
		VSize: int64(gas),
		evmTx: signed,
	}, nil
}

// publish broadcasts the signed transaction.
func (e *evmLeg) publish(ctx context.Context, tx *PreparedTx) error {
	if tx.evmTx == nil {
		return fmt.Errorf("%w: not a %v transaction",
			ErrIllegalArgument, e.asset)
	}

	return e.cfg.Backend.SendTransaction(ctx, tx.evmTx)
}
