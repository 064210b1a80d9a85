// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

// OnChainSender is the on-chain engine as seen by the engines that wrap it.
type OnChainSender interface {
	TxEngine

	// Retarget points the engine at a new on-chain target.
	Retarget(target CryptoTarget) error

	// PrepareTransaction signs the transaction for ptx without
	// broadcasting it.
	PrepareTransaction(ctx context.Context, ptx PendingTx,
		secondPassword string) (*PreparedTx, error)
}

// A compile-time assertion to ensure OnChainEngine can be wrapped.
var _ OnChainSender = (*OnChainEngine)(nil)

// RefundSource is implemented by non-custodial accounts that can take back
// the funds of a failed conversion.
type RefundSource interface {
	RefundAddress(ctx context.Context) (string, error)
}

// ConversionConfig holds the collaborators of the sell and swap engines.
type ConversionConfig struct {
	// Quotes prices the conversion. The engine owns it: Start starts it
	// and Stop stops it.
	Quotes QuoteEngine

	// Limits supplies the user's tier and trade limits.
	Limits LimitService

	// Ledger creates the conversion orders.
	Ledger CustodialLedger

	// Fiat is the currency limits are fetched and shown in. The sell
	// engine uses the fiat of its target account instead.
	Fiat money.Asset

	// NewOrderID returns the idempotency id of a new order. It defaults
	// to uuid.New.
	NewOrderID func() uuid.UUID
}

// validate ensures the required collaborators are set.
func (c ConversionConfig) validate() error {
	switch {
	case c.Quotes == nil:
		return fmt.Errorf("%w: quote engine", errMissingCollaborator)

	case c.Limits == nil:
		return fmt.Errorf("%w: limit service", errMissingCollaborator)

	case c.Ledger == nil:
		return fmt.Errorf("%w: custodial ledger",
			errMissingCollaborator)
	}

	return nil
}

func (c ConversionConfig) withDefaults() ConversionConfig {
	if c.NewOrderID == nil {
		c.NewOrderID = uuid.New
	}

	return c
}

// conversionLimits are a user's trade limits in the source asset.
type conversionLimits struct {
	tier     KycTier
	quoteID  string
	minLimit money.Money
	maxLimit money.Money
}

// isLimitReached reports whether err means the user has too many open
// orders.
func isLimitReached(err error) bool {
	return errors.Is(err, ErrPendingOrdersLimitReached)
}

// fetchConversionLimits fetches the user's tier and trade limits, waits for
// the first quote and converts the limits to the source asset. The minimum
// also covers the quote's network fee so it pays for its own settlement.
//
// The limit service is asked first. If it reports that the pending orders
// limit is reached, the quote engine is not consulted.
func fetchConversionLimits(ctx context.Context, cfg ConversionConfig,
	rates ExchangeRates, pair money.Pair,
	fiat money.Asset) (conversionLimits, error) {

	var (
		tiers  KycTiers
		limits TransferLimits
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tiers, err = cfg.Limits.Tiers(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		limits, err = cfg.Limits.TransferLimits(
			gctx, fiat, ProductTrade,
		)

		return err
	})

	if err := g.Wait(); err != nil {
		return conversionLimits{}, fmt.Errorf("fetch limits: %w", err)
	}

	if limits.Min.Asset() != fiat || limits.Max.Asset() != fiat {
		return conversionLimits{}, fmt.Errorf("%w: limits are in %v, "+
			"want %v", ErrAssetMismatch, limits.Min.Asset(), fiat)
	}

	priced, err := cfg.Quotes.PricedQuote(ctx)
	if err != nil {
		return conversionLimits{}, fmt.Errorf("fetch quote: %w", err)
	}

	price, err := rates.LastPrice(pair.Source, fiat)
	if err != nil {
		return conversionLimits{}, fmt.Errorf("fetch %v-%v rate: %w",
			pair.Source, fiat, err)
	}

	minLimit, err := limits.Min.ConvertInverseCeil(price, pair.Source)
	if err != nil {
		return conversionLimits{}, err
	}

	maxLimit, err := limits.Max.ConvertInverse(price, pair.Source)
	if err != nil {
		return conversionLimits{}, err
	}

	fee, err := networkFeeIn(priced, pair.Source)
	if err != nil {
		return conversionLimits{}, err
	}

	minLimit, err = minLimit.Add(fee)
	if err != nil {
		return conversionLimits{}, err
	}

	log.Debugf("Trade limits for %v at tier %v: %v..%v (fee %v)", pair,
		tiers.Current, minLimit, maxLimit, fee)

	return conversionLimits{
		tier:     tiers.Current,
		quoteID:  priced.Quote.ID,
		minLimit: minLimit,
		maxLimit: maxLimit,
	}, nil
}

// networkFeeIn returns the quote's network fee in the source asset. Fees
// quoted in the target asset are converted at the quote's price.
func networkFeeIn(priced quote.PricedQuote,
	source money.Asset) (money.Money, error) {

	fee := priced.Quote.NetworkFee
	switch fee.Asset() {
	case source:
		return fee, nil

	case money.Asset{}:
		return money.Zero(source), nil

	case priced.Quote.Pair.Target:
		return fee.ConvertInverse(priced.Price, source)

	default:
		return money.Money{}, fmt.Errorf("%w: network fee in %v for "+
			"pair %v", ErrAssetMismatch, fee.Asset(),
			priced.Quote.Pair)
	}
}

// limitReachedTx is the terminal pending tx of a conversion the user cannot
// open an order for.
func limitReachedTx(source, fiat money.Asset) PendingTx {
	ptx := newPendingTx(source, source.FeeAsset())
	ptx.SelectedFiat = fiat
	ptx.ValidationState = PendingOrdersLimitReached

	return ptx
}

// isTerminal reports whether ptx ended in a state no amount can fix.
func isTerminal(ptx PendingTx) bool {
	return ptx.ValidationState == PendingOrdersLimitReached
}

// withLatestQuote records the id of the quote engine's latest quote in the
// conversion context of ptx. The pending tx is left as is when no quote is
// available.
func withLatestQuote(ptx PendingTx, quotes QuoteEngine) PendingTx {
	c, ok := ptx.EngineState.(ConversionContext)
	if !ok {
		return ptx
	}

	latest, err := quotes.LatestQuote()
	if err != nil || latest.Quote.ID == c.QuoteID {
		return ptx
	}

	log.Debugf("Quote %s replaced by %s", c.QuoteID, latest.Quote.ID)

	c.QuoteID = latest.Quote.ID
	ptx.EngineState = c

	return ptx
}

// conversionConfirmations appends the exchange rate row when a quote is
// available.
func conversionConfirmations(items []ConfirmationItem, pair money.Pair,
	quotes QuoteEngine) []ConfirmationItem {

	latest, err := quotes.LatestQuote()
	if err != nil {
		return items
	}

	return append(items, rateConfirmation(pair, latest.Price))
}

// refundAddress returns the refund address of source, or an empty string
// if the account cannot take refunds.
func refundAddress(ctx context.Context, source Account) (string, error) {
	refunds, ok := source.(RefundSource)
	if !ok {
		return "", nil
	}

	address, err := refunds.RefundAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch refund address: %w", err)
	}

	return address, nil
}

// noFeeLevel handles fee-level changes for engines that only support
// FeeLevelNone.
func noFeeLevel(ptx PendingTx, level FeeLevel) (PendingTx, error) {
	if level != FeeLevelNone {
		return PendingTx{}, fmt.Errorf("%w: %w: only %v is supported",
			ErrIllegalArgument, ErrIllegalFeeLevel, FeeLevelNone)
	}

	return ptx, nil
}

// larger returns the larger of two amounts, or a if they cannot be
// compared.
func larger(a, b money.Money) money.Money {
	if cmp, err := a.Cmp(b); err == nil && cmp < 0 {
		return b
	}

	return a
}

// tighterLimits narrows a pair of limits by another, optional pair.
func tighterLimits(minLimit, maxLimit money.Money,
	otherMin, otherMax fn.Option[money.Money]) (money.Money, money.Money) {

	minLimit = larger(minLimit, otherMin.UnwrapOr(minLimit))

	smaller, err := maxLimit.Min(otherMax.UnwrapOr(maxLimit))
	if err == nil {
		maxLimit = smaller
	}

	return minLimit, maxLimit
}
