// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// tradeKind tells the custodial trade engines apart.
type tradeKind uint8

const (
	// tradeSell sells a trading balance into a fiat account.
	tradeSell tradeKind = iota

	// tradeSwap converts a trading balance into another crypto asset.
	tradeSwap
)

// String returns the string representation of a trade kind.
func (k tradeKind) String() string {
	switch k {
	case tradeSell:
		return "trading sell"

	case tradeSwap:
		return "swap"

	default:
		return "unknown trade"
	}
}

// TradeEngine converts funds held by the custodial ledger. No transaction
// touches a chain: the ledger settles the order internally, so there are no
// fee levels and the whole balance is available.
type TradeEngine struct {
	binding

	kind  tradeKind
	asset money.Asset
	cfg   ConversionConfig
}

// A compile-time assertion to ensure TradeEngine implements TxEngine.
var _ TxEngine = (*TradeEngine)(nil)

// NewTradingSellEngine creates an engine selling a trading balance of asset
// into a fiat account.
func NewTradingSellEngine(asset money.Asset,
	cfg ConversionConfig) (*TradeEngine, error) {

	return newTradeEngine(tradeSell, asset, cfg)
}

// NewSwapEngine creates an engine converting a trading balance of asset
// into another trading balance. Limits are fetched and shown in cfg.Fiat.
func NewSwapEngine(asset money.Asset,
	cfg ConversionConfig) (*TradeEngine, error) {

	if !cfg.Fiat.IsFiat() {
		return nil, fmt.Errorf("%w: swap needs a display fiat, got %v",
			ErrIllegalArgument, cfg.Fiat)
	}

	return newTradeEngine(tradeSwap, asset, cfg)
}

func newTradeEngine(kind tradeKind, asset money.Asset,
	cfg ConversionConfig) (*TradeEngine, error) {

	if asset.IsZero() || asset.IsFiat() {
		return nil, fmt.Errorf("%w: %v engine needs a crypto asset, "+
			"got %v", ErrIllegalArgument, kind, asset)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &TradeEngine{
		kind:  kind,
		asset: asset,
		cfg:   cfg.withDefaults(),
	}, nil
}

// Start binds the engine and starts the quote stream.
func (e *TradeEngine) Start(source Account, target Target,
	rates ExchangeRates) {

	precondition(e.checkInputs(source, target, rates))

	e.bind(source, target, rates)

	precondition(e.cfg.Quotes.Start(
		quote.DirectionInternal,
		money.NewPair(source.Asset(), target.Asset()),
	))

	log.Debugf("%v engine started: %v -> %v", e.kind, source.Label(),
		target.Label())
}

// checkInputs ensures the source is a trading account in the engine's asset
// and the target is a fiat account for sells or another trading account for
// swaps.
func (e *TradeEngine) checkInputs(source Account, target Target,
	rates ExchangeRates) error {

	if source == nil || source.Custody() != CustodyTrading {
		return fmt.Errorf("%w: %v needs a trading account source",
			ErrInvalidSource, e.kind)
	}

	if source.Asset() != e.asset {
		return fmt.Errorf("%w: source holds %v, engine trades %v",
			ErrAssetMismatch, source.Asset(), e.asset)
	}

	account, ok := target.(*AccountTarget)
	if !ok {
		return fmt.Errorf("%w: %v needs an account target, got %T",
			ErrInvalidTarget, e.kind, target)
	}

	switch e.kind {
	case tradeSell:
		if account.Account.Custody() != CustodyFiat ||
			!account.Asset().IsFiat() {

			return fmt.Errorf("%w: trading sell needs a fiat "+
				"account, got %v", ErrInvalidTarget,
				account.Asset())
		}

	case tradeSwap:
		if account.Account.Custody() != CustodyTrading {
			return fmt.Errorf("%w: swap needs a trading account",
				ErrInvalidTarget)
		}

		if account.Asset() == e.asset || account.Asset().IsFiat() {
			return fmt.Errorf("%w: cannot swap %v into %v",
				ErrAssetMismatch, e.asset, account.Asset())
		}
	}

	if rates == nil {
		return fmt.Errorf("%w: %v needs exchange rates",
			ErrIllegalArgument, e.kind)
	}

	return nil
}

// AssertInputsValid re-checks the Start preconditions.
func (e *TradeEngine) AssertInputsValid() error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.checkInputs(e.boundSource(), e.boundTarget(), e.boundRates())
}

// SourceAsset returns the asset being traded.
func (e *TradeEngine) SourceAsset() money.Asset {
	return e.asset
}

// fiat returns the currency limits are shown in.
func (e *TradeEngine) fiat() money.Asset {
	if e.kind == tradeSell {
		return e.boundTarget().Asset()
	}

	return e.cfg.Fiat
}

// pair returns the conversion pair.
func (e *TradeEngine) pair() money.Pair {
	return money.NewPair(e.asset, e.boundTarget().Asset())
}

// DoInitialiseTx fetches the trade limits, the first quote and the trading
// balance.
func (e *TradeEngine) DoInitialiseTx(ctx context.Context) (PendingTx, error) {
	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	fiat := e.fiat()

	limits, err := fetchConversionLimits(
		ctx, e.cfg, e.boundRates(), e.pair(), fiat,
	)
	switch {
	case isLimitReached(err):
		log.Infof("%v %v: pending orders limit reached", e.kind,
			e.pair())

		return limitReachedTx(e.asset, fiat), nil

	case err != nil:
		return PendingTx{}, err
	}

	balance, err := e.boundSource().AccountBalance(ctx)
	if err != nil {
		return PendingTx{}, fmt.Errorf("fetch trading balance: %w", err)
	}

	if err := checkAmountAsset(balance, e.asset); err != nil {
		return PendingTx{}, err
	}

	ptx := newPendingTx(e.asset, e.asset)
	ptx.TotalBalance = balance
	ptx.AvailableBalance = balance.ClampZero()
	ptx.MinLimit = fn.Some(limits.minLimit)
	ptx.MaxLimit = fn.Some(limits.maxLimit)
	ptx.SelectedFiat = fiat
	ptx.EngineState = ConversionContext{
		UserTier: limits.tier,
		QuoteID:  limits.quoteID,
	}

	return ptx, nil
}

// DoUpdateAmount re-prices the quote stream. Only the amount changes.
func (e *TradeEngine) DoUpdateAmount(_ context.Context, amount money.Money,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkAmountAsset(amount, e.asset); err != nil {
		return PendingTx{}, err
	}

	if !isTerminal(ptx) {
		if err := e.cfg.Quotes.UpdateAmount(amount); err != nil {
			return PendingTx{}, fmt.Errorf("re-price quote: %w",
				err)
		}
	}

	ptx.Amount = amount

	return invalidated(ptx), nil
}

// DoUpdateFeeLevel only accepts FeeLevelNone.
func (e *TradeEngine) DoUpdateFeeLevel(_ context.Context, ptx PendingTx,
	level FeeLevel, _ int64) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	return noFeeLevel(ptx, level)
}

// DoValidateAmount validates the amount and picks up the latest quote.
func (e *TradeEngine) DoValidateAmount(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if isTerminal(ptx) {
		return ptx, nil
	}

	checked, err := validated(ptx)
	if err != nil {
		return PendingTx{}, err
	}

	return withLatestQuote(checked, e.cfg.Quotes), nil
}

// DoBuildConfirmations lists the trade and the quoted exchange rate.
func (e *TradeEngine) DoBuildConfirmations(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	ptx.Confirmations = conversionConfirmations(
		transferConfirmations(
			e.boundSource(), e.boundTarget(), "Fee", ptx,
		),
		e.pair(), e.cfg.Quotes,
	)

	return ptx, nil
}

// DoExecute creates the order. The ledger settles it without a chain
// transaction.
func (e *TradeEngine) DoExecute(ctx context.Context, ptx PendingTx,
	_ string) (TxResult, error) {

	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := checkExecutable(ptx); err != nil {
		return nil, err
	}

	priced, err := e.cfg.Quotes.LatestQuote()
	if err != nil {
		return nil, err
	}

	order, err := e.cfg.Ledger.CreateOrder(ctx, OrderRequest{
		ID:        e.cfg.NewOrderID(),
		Direction: quote.DirectionInternal,
		Pair:      e.pair(),
		Amount:    ptx.Amount,
		QuoteID:   priced.Quote.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create %v order: %w", e.kind, err)
	}

	log.Infof("Placed %v order %s for %v", e.kind, order.ID, ptx.Amount)

	return UnHashedResult{Amount: ptx.Amount, OrderID: order.ID}, nil
}

// Stop stops the quote stream.
func (e *TradeEngine) Stop() {
	if !e.unbind() {
		return
	}

	e.cfg.Quotes.Stop()

	if e.wasBound() {
		log.Debugf("%v engine stopped", e.kind)
	}
}
