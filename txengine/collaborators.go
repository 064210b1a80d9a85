// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

// ExchangeRates supplies cached exchange rates.
type ExchangeRates interface {
	// LastPrice returns the price of one unit of from in units of to.
	LastPrice(from, to money.Asset) (decimal.Decimal, error)
}

// FeeOptions are the fee tiers of one chain. For UTXO chains the fees are
// in sat/vB; for EVM chains they are gas prices in gwei.
type FeeOptions struct {
	RegularFee  uint64
	PriorityFee uint64

	// GasLimit is the gas limit of a native transfer. Zero means the
	// protocol minimum.
	GasLimit uint64

	// GasLimitContract is the gas limit of a token transfer.
	GasLimitContract uint64
}

// FeeOracle supplies current fee tiers per asset.
type FeeOracle interface {
	FeeOptions(ctx context.Context, asset money.Asset) (FeeOptions, error)
}

// FeePreferenceStore remembers the last fee level the user picked per
// asset.
type FeePreferenceStore interface {
	// FeeLevelFor returns the saved level, or None if nothing was saved.
	FeeLevelFor(ctx context.Context,
		asset money.Asset) (fn.Option[FeeLevel], error)

	// SaveFeeLevel saves the level for the asset.
	SaveFeeLevel(ctx context.Context, asset money.Asset,
		level FeeLevel) error
}

// KycTier is the verification tier of the user.
type KycTier uint8

const (
	// KycTierNone is an unverified user.
	KycTierNone KycTier = iota

	// KycTierSilver is a user with basic verification.
	KycTierSilver

	// KycTierGold is a fully verified user.
	KycTierGold
)

// String returns the string representation of a tier.
func (k KycTier) String() string {
	switch k {
	case KycTierNone:
		return "none"

	case KycTierSilver:
		return "silver"

	case KycTierGold:
		return "gold"

	default:
		return "unknown tier"
	}
}

// KycTiers is a snapshot of the user's verification state.
type KycTiers struct {
	// Current is the tier the user holds.
	Current KycTier

	// Pending is the tier under review, if any.
	Pending fn.Option[KycTier]
}

// Product identifies the custodial product limits are fetched for.
type Product uint8

const (
	// ProductTrade covers sells and swaps.
	ProductTrade Product = iota

	// ProductWithdraw covers fiat withdrawals.
	ProductWithdraw
)

// String returns the string representation of a product.
func (p Product) String() string {
	switch p {
	case ProductTrade:
		return "trade"

	case ProductWithdraw:
		return "withdraw"

	default:
		return "unknown product"
	}
}

// TransferLimits are the limits of one product, in a fiat currency.
type TransferLimits struct {
	Min      money.Money
	MaxOrder money.Money
	Max      money.Money
}

// LimitService supplies the user's tier and transfer limits.
//
// Any method may fail with ErrPendingOrdersLimitReached.
type LimitService interface {
	Tiers(ctx context.Context) (KycTiers, error)

	TransferLimits(ctx context.Context, fiat money.Asset,
		product Product) (TransferLimits, error)
}

// OrderRequest asks the custodial ledger to convert funds.
type OrderRequest struct {
	// ID is an idempotency id chosen by the caller.
	ID uuid.UUID

	Direction quote.Direction
	Pair      money.Pair
	Amount    money.Money
	QuoteID   string

	// RefundAddress is where a failed conversion is returned for
	// non-custodial sources.
	RefundAddress string
}

// Order is the ledger's acknowledgement of an order.
type Order struct {
	ID string

	// DepositAddress is where a non-custodial source must send the
	// funds. It is empty for custodial sources.
	DepositAddress string
}

// CustodialLedger is the settlement rail for custodial orders and fiat
// withdrawals.
type CustodialLedger interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)

	CreateWithdrawOrder(ctx context.Context, amount money.Money,
		bankAccount string) error
}

// PaymentProposal is a signed, unbroadcast transaction offered to an
// invoice processor.
type PaymentProposal struct {
	InvoiceID string
	Chain     string

	// RawTx is the hex encoded signed transaction.
	RawTx string

	// WeightedSize is the virtual size of the transaction in vbytes.
	WeightedSize int64
}

// InvoiceService is the invoice processor's payment API. The processor
// broadcasts the transaction itself once it accepts it.
type InvoiceService interface {
	VerifyPayment(ctx context.Context, proposal PaymentProposal) error

	SubmitPayment(ctx context.Context, proposal PaymentProposal) error
}

// QuoteEngine is the conversion pricing stream used by the sell and swap
// engines. *quote.Engine implements it.
type QuoteEngine interface {
	Start(direction quote.Direction, pair money.Pair) error
	Stop()
	PricedQuote(ctx context.Context) (quote.PricedQuote, error)
	LatestQuote() (quote.PricedQuote, error)
	UpdateAmount(amount money.Money) error
}

// Coin is a spendable output of a UTXO account.
type Coin struct {
	wire.TxOut
	wire.OutPoint
}

// CoinSource lists the spendable outputs of the bound UTXO account.
type CoinSource interface {
	Coins(ctx context.Context) ([]Coin, error)
}

// ChangeSource hands out change scripts for the bound UTXO account.
type ChangeSource interface {
	NewChangeScript(ctx context.Context) ([]byte, error)
}

// PsbtSigner signs the inputs of a PSBT it owns keys for. The second
// password unlocks the keys if the wallet is double encrypted.
type PsbtSigner interface {
	SignPsbt(ctx context.Context, packet *psbt.Packet,
		secondPassword string) error
}

// Publisher broadcasts a finished transaction.
type Publisher interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
}

// EVMBackend is the subset of an EVM node client used by the engine.
// *ethclient.Client implements it.
type EVMBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64,
		error)

	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMSigner signs EVM transactions for the bound account.
type EVMSigner interface {
	SignTx(ctx context.Context, tx *types.Transaction,
		secondPassword string) (*types.Transaction, error)
}

// A compile-time assertion to ensure the quote engine satisfies the
// contract the conversion engines need.
var _ QuoteEngine = (*quote.Engine)(nil)
