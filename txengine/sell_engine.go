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

// SellEngine sells crypto from a non-custodial account into a fiat account.
// It prices the sale with a quote stream and pays the custodial order's
// deposit address through the wrapped on-chain engine.
type SellEngine struct {
	binding

	cfg     ConversionConfig
	wrapped OnChainSender
}

// A compile-time assertion to ensure SellEngine implements TxEngine.
var _ TxEngine = (*SellEngine)(nil)

// NewSellEngine creates a sell engine around an on-chain engine for the
// source asset. The sell engine owns both the wrapped engine and the quote
// engine.
func NewSellEngine(cfg ConversionConfig,
	wrapped OnChainSender) (*SellEngine, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if wrapped == nil {
		return nil, fmt.Errorf("%w: on-chain engine",
			errMissingCollaborator)
	}

	return &SellEngine{cfg: cfg.withDefaults(), wrapped: wrapped}, nil
}

// Start binds the engine, starts the wrapped engine against a placeholder
// deposit target and then starts the quote stream. The real deposit address is
// filled in once the first quote arrives.
func (e *SellEngine) Start(source Account, target Target,
	rates ExchangeRates) {

	precondition(e.checkInputs(source, target, rates))

	e.bind(source, target, rates)

	e.wrapped.Start(
		source, NewAddressTarget(source.Asset(), "", target.Label()),
		rates,
	)

	err := e.cfg.Quotes.Start(
		quote.DirectionFromUserKey, e.pair(source, target),
	)
	if err != nil {
		e.unbind()
		e.wrapped.Stop()
		precondition(err)
	}

	log.Debugf("Sell engine started: %v -> %v", source.Label(),
		target.Label())
}

// checkInputs ensures the engine sells its wrapped asset from a
// non-custodial account into a fiat account.
func (e *SellEngine) checkInputs(source Account, target Target,
	rates ExchangeRates) error {

	if source == nil || source.Custody() != CustodyNonCustodial {
		return fmt.Errorf("%w: sell needs a non-custodial source",
			ErrInvalidSource)
	}

	if source.Asset() != e.wrapped.SourceAsset() {
		return fmt.Errorf("%w: source holds %v, engine sells %v",
			ErrAssetMismatch, source.Asset(),
			e.wrapped.SourceAsset())
	}

	fiat, ok := target.(*AccountTarget)
	if !ok || fiat.Account.Custody() != CustodyFiat {
		return fmt.Errorf("%w: sell needs a fiat account target, got "+
			"%T", ErrInvalidTarget, target)
	}

	if !fiat.Asset().IsFiat() {
		return fmt.Errorf("%w: target holds %v", ErrAssetMismatch,
			fiat.Asset())
	}

	if rates == nil {
		return fmt.Errorf("%w: sell needs exchange rates",
			ErrIllegalArgument)
	}

	return nil
}

// pair returns the conversion pair of a source and target.
func (e *SellEngine) pair(source Account, target Target) money.Pair {
	return money.NewPair(source.Asset(), target.Asset())
}

// AssertInputsValid checks the wrapped engine, then the sell inputs.
func (e *SellEngine) AssertInputsValid() error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.wrapped.AssertInputsValid(); err != nil {
		return err
	}

	return e.checkInputs(e.boundSource(), e.boundTarget(), e.boundRates())
}

// SourceAsset returns the asset being sold.
func (e *SellEngine) SourceAsset() money.Asset {
	return e.wrapped.SourceAsset()
}

// DoInitialiseTx fetches the trade limits and the first quote, points the
// wrapped engine at the quote's sample deposit address and overlays the
// limits on its pending tx.
func (e *SellEngine) DoInitialiseTx(ctx context.Context) (PendingTx, error) {
	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	source, target := e.boundSource(), e.boundTarget()
	fiat := target.Asset()
	pair := e.pair(source, target)

	limits, err := fetchConversionLimits(
		ctx, e.cfg, e.boundRates(), pair, fiat,
	)
	switch {
	case isLimitReached(err):
		log.Infof("Sell %v: pending orders limit reached", pair)

		return limitReachedTx(source.Asset(), fiat), nil

	case err != nil:
		return PendingTx{}, err
	}

	priced, err := e.cfg.Quotes.LatestQuote()
	if err != nil {
		return PendingTx{}, err
	}

	err = e.wrapped.Retarget(NewAddressTarget(
		source.Asset(), priced.Quote.SampleDepositAddress,
		target.Label(),
	))
	if err != nil {
		return PendingTx{}, fmt.Errorf("target sample deposit "+
			"address: %w", err)
	}

	ptx, err := e.wrapped.DoInitialiseTx(ctx)
	if err != nil {
		return PendingTx{}, err
	}

	minLimit, maxLimit := tighterLimits(
		limits.minLimit, limits.maxLimit, ptx.MinLimit, ptx.MaxLimit,
	)
	ptx.MinLimit = fn.Some(minLimit)
	ptx.MaxLimit = fn.Some(maxLimit)

	if ptx.AvailableFeeLevels.Contains(FeeLevelPriority) {
		ptx = withFeeLevel(ptx, FeeLevelPriority, CustomFeeUnset)
		ptx.AvailableFeeLevels = FeeLevels(FeeLevelPriority)
	}

	ptx.SelectedFiat = fiat
	ptx.EngineState = ConversionContext{
		UserTier: limits.tier,
		QuoteID:  limits.quoteID,
		Leg:      ptx.EngineState,
	}

	log.Tracef("Initialised sell: %v", spewPendingTx(ptx))

	return ptx, nil
}

// DoUpdateAmount re-prices the quote stream for the amount and has the
// wrapped engine recompute its fees. The wrapped engine's balances and fees
// are passed through unchanged.
func (e *SellEngine) DoUpdateAmount(ctx context.Context, amount money.Money,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkAmountAsset(amount, e.SourceAsset()); err != nil {
		return PendingTx{}, err
	}

	if isTerminal(ptx) {
		ptx.Amount = amount

		return invalidated(ptx), nil
	}

	if err := e.cfg.Quotes.UpdateAmount(amount); err != nil {
		return PendingTx{}, fmt.Errorf("re-price quote: %w", err)
	}

	updated, err := e.wrapped.DoUpdateAmount(ctx, amount, unwrapLeg(ptx))
	if err != nil {
		return PendingTx{}, err
	}

	return invalidated(rewrap(ptx, updated)), nil
}

// DoUpdateFeeLevel forwards legal fee-level changes to the wrapped engine.
func (e *SellEngine) DoUpdateFeeLevel(ctx context.Context, ptx PendingTx,
	level FeeLevel, customFee int64) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkFeeLevelChange(ptx, level, customFee); err != nil {
		return PendingTx{}, err
	}

	if level == ptx.FeeLevel && level != FeeLevelCustom {
		return ptx, nil
	}

	updated, err := e.wrapped.DoUpdateFeeLevel(
		ctx, unwrapLeg(ptx), level, customFee,
	)
	if err != nil {
		return PendingTx{}, err
	}

	return invalidated(rewrap(ptx, updated)), nil
}

// DoValidateAmount validates through the wrapped engine and picks up the
// latest quote.
func (e *SellEngine) DoValidateAmount(ctx context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if isTerminal(ptx) {
		return ptx, nil
	}

	checked, err := e.wrapped.DoValidateAmount(ctx, unwrapLeg(ptx))
	if err != nil {
		return PendingTx{}, err
	}

	return withLatestQuote(rewrap(ptx, checked), e.cfg.Quotes), nil
}

// DoBuildConfirmations lists the sale and the quoted exchange rate.
func (e *SellEngine) DoBuildConfirmations(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	source, target := e.boundSource(), e.boundTarget()
	ptx.Confirmations = conversionConfirmations(
		transferConfirmations(source, target, "Network fee", ptx),
		e.pair(source, target), e.cfg.Quotes,
	)

	return ptx, nil
}

// DoExecute creates the sell order, points the wrapped engine at the
// order's deposit address and broadcasts the payment.
func (e *SellEngine) DoExecute(ctx context.Context, ptx PendingTx,
	secondPassword string) (TxResult, error) {

	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := checkExecutable(ptx); err != nil {
		return nil, err
	}

	source, target := e.boundSource(), e.boundTarget()

	priced, err := e.cfg.Quotes.LatestQuote()
	if err != nil {
		return nil, err
	}

	refund, err := refundAddress(ctx, source)
	if err != nil {
		return nil, err
	}

	order, err := e.cfg.Ledger.CreateOrder(ctx, OrderRequest{
		ID:            e.cfg.NewOrderID(),
		Direction:     quote.DirectionFromUserKey,
		Pair:          e.pair(source, target),
		Amount:        ptx.Amount,
		QuoteID:       priced.Quote.ID,
		RefundAddress: refund,
	})
	if err != nil {
		return nil, fmt.Errorf("create sell order: %w", err)
	}

	if order.DepositAddress == "" {
		return nil, fmt.Errorf("%w: order %s", ErrMissingDepositAddress,
			order.ID)
	}

	err = e.wrapped.Retarget(NewAddressTarget(
		source.Asset(), order.DepositAddress, target.Label(),
	))
	if err != nil {
		return nil, fmt.Errorf("target order %s: %w", order.ID, err)
	}

	if _, err := e.wrapped.DoExecute(
		ctx, unwrapLeg(ptx), secondPassword,
	); err != nil {
		return nil, fmt.Errorf("pay order %s: %w", order.ID, err)
	}

	log.Infof("Sold %v in order %s", ptx.Amount, order.ID)

	return UnHashedResult{Amount: ptx.Amount, OrderID: order.ID}, nil
}

// Stop stops the quote stream and the wrapped engine.
func (e *SellEngine) Stop() {
	if !e.unbind() {
		return
	}

	e.cfg.Quotes.Stop()
	e.wrapped.Stop()

	if e.wasBound() {
		log.Debugf("Sell engine stopped")
	}
}
