package txengine

import (
	"testing"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// milliEther returns n thousandths of an ether.
func milliEther(n int64) money.Money {
	return money.FromMinor(money.ETH, n*1_000_000_000_000_000)
}

// tradingTarget is a trading account of asset.
func tradingTarget(asset money.Asset) *AccountTarget {
	return &AccountTarget{Account: newMockAccount(asset, CustodyTrading)}
}

// swapHarness is a BTC to ETH swap engine with mocked collaborators.
type swapHarness struct {
	engine *TradeEngine
	source *mockAccount
	quotes *mockQuotes
	limits *mockLimits
	ledger *mockLedger
	rates  *mockRates
	priced quote.PricedQuote
}

// newSwapHarness creates and starts a custodial BTC to ETH swap engine.
func newSwapHarness(t *testing.T) *swapHarness {
	t.Helper()

	h := &swapHarness{
		source: newMockAccount(money.BTC, CustodyTrading),
		quotes: &mockQuotes{},
		limits: &mockLimits{},
		ledger: &mockLedger{},
		rates:  &mockRates{},
	}

	pair := money.NewPair(money.BTC, money.ETH)
	h.priced = quote.PricedQuote{
		Price: decimal.NewFromInt(20),
		Quote: quote.Quote{
			ID:         "q1",
			Pair:       pair,
			Direction:  quote.DirectionInternal,
			NetworkFee: milliEther(1),
		},
	}

	engine, err := NewSwapEngine(money.BTC, ConversionConfig{
		Quotes:     h.quotes,
		Limits:     h.limits,
		Ledger:     h.ledger,
		Fiat:       eur,
		NewOrderID: func() uuid.UUID { return testOrderID },
	})
	require.NoError(t, err)
	h.engine = engine

	h.quotes.On("Start", quote.DirectionInternal, pair).Return(nil).Once()
	h.quotes.On("Stop").Once()

	h.engine.Start(h.source, tradingTarget(money.ETH), h.rates)

	t.Cleanup(func() {
		h.engine.Stop()

		h.source.AssertExpectations(t)
		h.quotes.AssertExpectations(t)
		h.limits.AssertExpectations(t)
		h.ledger.AssertExpectations(t)
	})

	return h
}

// initialise runs DoInitialiseTx with the happy-path expectations.
func (h *swapHarness) initialise(t *testing.T) PendingTx {
	t.Helper()

	h.limits.On("Tiers", mock.Anything).
		Return(KycTiers{Current: KycTierSilver}, nil).Once()
	h.limits.On("TransferLimits", mock.Anything, eur, ProductTrade).
		Return(TransferLimits{
			Min:      euro(1_000),
			MaxOrder: euro(500_000),
			Max:      euro(1_000_000),
		}, nil).Once()
	h.quotes.On("PricedQuote", mock.Anything).Return(h.priced, nil).Once()
	h.rates.On("LastPrice", money.BTC, eur).
		Return(decimal.NewFromInt(50_000), nil).Once()
	h.source.On("AccountBalance", mock.Anything).
		Return(btc(1_000_000), nil).Once()

	ptx, err := h.engine.DoInitialiseTx(t.Context())
	require.NoError(t, err)

	return ptx
}

// TestSwapInitialise checks the limits and balances of a swap.
func TestSwapInitialise(t *testing.T) {
	t.Parallel()

	h := newSwapHarness(t)
	ptx := h.initialise(t)

	// 10 EUR is 20k sat, and the 0.001 ETH fee at 20 ETH/BTC is 5k sat.
	requireMoney(t, btc(25_000), ptx.MinLimit.UnwrapOr(money.Money{}))
	requireMoney(t, btc(20_000_000), ptx.MaxLimit.UnwrapOr(money.Money{}))

	requireMoney(t, btc(1_000_000), ptx.TotalBalance)
	requireMoney(t, btc(1_000_000), ptx.AvailableBalance)
	requireMoney(t, btc(0), ptx.Fees)
	require.Equal(t, FeeLevelNone, ptx.FeeLevel)
	require.Equal(t, FeeLevels(FeeLevelNone), ptx.AvailableFeeLevels)
	require.Equal(t, eur, ptx.SelectedFiat)
	require.Equal(t, ConversionContext{
		UserTier: KycTierSilver, QuoteID: "q1",
	}, ptx.EngineState)
}

// TestSwapPipeline runs a swap from amount entry to execution.
func TestSwapPipeline(t *testing.T) {
	t.Parallel()

	h := newSwapHarness(t)
	ptx := h.initialise(t)

	amount := btc(100_000)
	h.quotes.On("UpdateAmount", amount).Return(nil).Once()

	ptx, err := h.engine.DoUpdateAmount(t.Context(), amount, ptx)
	require.NoError(t, err)
	requireMoney(t, amount, ptx.Amount)
	requireMoney(t, btc(1_000_000), ptx.AvailableBalance)

	// A newer quote replaces the one the limits were priced with.
	requoted := h.priced
	requoted.Quote.ID = "q2"
	h.quotes.On("LatestQuote").Return(requoted, nil)

	ptx, err = h.engine.DoValidateAmount(t.Context(), ptx)
	require.NoError(t, err)
	require.Equal(t, CanExecute, ptx.ValidationState)
	require.Equal(t, "q2", ptx.EngineState.(ConversionContext).QuoteID)

	ptx, err = h.engine.DoBuildConfirmations(t.Context(), ptx)
	require.NoError(t, err)
	require.NotEmpty(t, ptx.Confirmations)

	h.ledger.On("CreateOrder", mock.Anything, OrderRequest{
		ID:        testOrderID,
		Direction: quote.DirectionInternal,
		Pair:      money.NewPair(money.BTC, money.ETH),
		Amount:    amount,
		QuoteID:   "q2",
	}).Return(Order{ID: "o1"}, nil).Once()

	result, err := h.engine.DoExecute(t.Context(), ptx, "")
	require.NoError(t, err)
	require.Equal(t, "o1", result.(UnHashedResult).OrderID)
	requireMoney(t, amount, result.SentAmount())
}

// TestTradeFeeLevels checks that only FeeLevelNone is accepted.
func TestTradeFeeLevels(t *testing.T) {
	t.Parallel()

	h := newSwapHarness(t)
	ptx := newPendingTx(money.BTC, money.BTC)

	for _, level := range []FeeLevel{
		FeeLevelRegular, FeeLevelPriority, FeeLevelCustom,
	} {
		_, err := h.engine.DoUpdateFeeLevel(t.Context(), ptx, level, 5)
		require.ErrorIs(t, err, ErrIllegalArgument)
		require.ErrorIs(t, err, ErrIllegalFeeLevel)
	}

	got, err := h.engine.DoUpdateFeeLevel(
		t.Context(), ptx, FeeLevelNone, CustomFeeUnset,
	)
	require.NoError(t, err)
	require.Equal(t, ptx, got)
}

// TestTradeLimitReached checks the terminal pending tx of a user with too
// many open orders.
func TestTradeLimitReached(t *testing.T) {
	t.Parallel()

	h := newSwapHarness(t)

	h.limits.On("Tiers", mock.Anything).
		Return(KycTiers{}, nil).Once()
	h.limits.On("TransferLimits", mock.Anything, eur, ProductTrade).
		Return(TransferLimits{}, ErrPendingOrdersLimitReached).Once()

	ptx, err := h.engine.DoInitialiseTx(t.Context())
	require.NoError(t, err)
	require.Equal(t, PendingOrdersLimitReached, ptx.ValidationState)
	require.Equal(t, eur, ptx.SelectedFiat)

	// Amount updates neither re-price nor leave the terminal state.
	ptx, err = h.engine.DoUpdateAmount(t.Context(), btc(10), ptx)
	require.NoError(t, err)
	requireMoney(t, btc(10), ptx.Amount)

	ptx, err = h.engine.DoValidateAmount(t.Context(), ptx)
	require.NoError(t, err)
	require.Equal(t, PendingOrdersLimitReached, ptx.ValidationState)

	_, err = h.engine.DoExecute(t.Context(), ptx, "")
	require.ErrorIs(t, err, ErrNotExecutable)

	h.quotes.AssertNotCalled(t, "PricedQuote", mock.Anything)
	h.quotes.AssertNotCalled(t, "UpdateAmount", mock.Anything)
	h.source.AssertNotCalled(t, "AccountBalance", mock.Anything)
}

// TestTradingSell checks a custodial sell into a fiat account.
func TestTradingSell(t *testing.T) {
	t.Parallel()

	// The fiat limits are 5 EUR and 1000 EUR, with a fee quoted in the
	// target fiat that happens to be zero.
	tests := []struct {
		name    string
		price   int64
		wantMin money.Money
		wantMax money.Money
	}{
		{
			name:    "exact conversion",
			price:   40_000,
			wantMin: btc(12_500),
			wantMax: btc(2_500_000),
		},
		{
			// 16_666.67 sat rounds up so the minimum never falls
			// below 5 EUR, while the maximum is truncated.
			name:    "inexact conversion",
			price:   30_000,
			wantMin: btc(16_667),
			wantMax: btc(3_333_333),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quotes := &mockQuotes{}
			limits := &mockLimits{}
			rates := &mockRates{}

			engine, err := NewTradingSellEngine(
				money.BTC, ConversionConfig{
					Quotes: quotes,
					Limits: limits,
					Ledger: &mockLedger{},
				},
			)
			require.NoError(t, err)

			pair := money.NewPair(money.BTC, eur)
			quotes.On("Start", quote.DirectionInternal, pair).
				Return(nil).Once()
			quotes.On("Stop").Once()

			source := newMockAccount(money.BTC, CustodyTrading)
			source.On("AccountBalance", mock.Anything).
				Return(btc(500_000), nil).Once()

			engine.Start(source, &AccountTarget{
				Account: newMockAccount(eur, CustodyFiat),
			}, rates)
			t.Cleanup(func() {
				engine.Stop()

				quotes.AssertExpectations(t)
				limits.AssertExpectations(t)
				source.AssertExpectations(t)
			})

			price := decimal.NewFromInt(tc.price)
			gold := KycTiers{Current: KycTierGold}
			limits.On("Tiers", mock.Anything).
				Return(gold, nil).Once()
			limits.On("TransferLimits", mock.Anything, eur,
				ProductTrade).
				Return(TransferLimits{
					Min: euro(500), Max: euro(100_000),
				}, nil).Once()
			quotes.On("PricedQuote", mock.Anything).
				Return(quote.PricedQuote{
					Price: price,
					Quote: quote.Quote{
						ID:         "q1",
						Pair:       pair,
						NetworkFee: money.Zero(eur),
					},
				}, nil).Once()
			rates.On("LastPrice", money.BTC, eur).
				Return(price, nil).Once()

			ptx, err := engine.DoInitialiseTx(t.Context())
			require.NoError(t, err)

			none := money.Money{}
			requireMoney(t, tc.wantMin, ptx.MinLimit.UnwrapOr(none))
			requireMoney(t, tc.wantMax, ptx.MaxLimit.UnwrapOr(none))
			requireMoney(t, btc(500_000), ptx.AvailableBalance)
		})
	}
}

// TestTradeStartPreconditions checks the source and target checks.
func TestTradeStartPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		swap    bool
		source  Account
		target  Target
		wantErr error
	}{
		{
			name:    "non-custodial source",
			swap:    true,
			source:  newMockAccount(money.BTC, CustodyNonCustodial),
			target:  tradingTarget(money.ETH),
			wantErr: ErrInvalidSource,
		},
		{
			name:    "swap into same asset",
			swap:    true,
			source:  newMockAccount(money.BTC, CustodyTrading),
			target:  tradingTarget(money.BTC),
			wantErr: ErrAssetMismatch,
		},
		{
			name:    "swap into fiat account",
			swap:    true,
			source:  newMockAccount(money.BTC, CustodyTrading),
			target:  &AccountTarget{
				Account: newMockAccount(eur, CustodyFiat),
			},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "sell into trading account",
			source:  newMockAccount(money.BTC, CustodyTrading),
			target:  tradingTarget(money.ETH),
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "sell to an address",
			source:  newMockAccount(money.BTC, CustodyTrading),
			target:  NewAddressTarget(money.BTC, "addr", ""),
			wantErr: ErrInvalidTarget,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quotes := &mockQuotes{}
			cfg := ConversionConfig{
				Quotes: quotes,
				Limits: &mockLimits{},
				Ledger: &mockLedger{},
				Fiat:   eur,
			}

			var (
				engine *TradeEngine
				err    error
			)
			if tc.swap {
				engine, err = NewSwapEngine(money.BTC, cfg)
			} else {
				engine, err = NewTradingSellEngine(
					money.BTC, cfg,
				)
			}
			require.NoError(t, err)

			requirePrecondition(t, tc.wantErr, func() {
				engine.Start(tc.source, tc.target, &mockRates{})
			})
			quotes.AssertNotCalled(
				t, "Start", mock.Anything, mock.Anything,
			)
		})
	}
}

// TestTradeConstructors checks the constructor argument checks.
func TestTradeConstructors(t *testing.T) {
	t.Parallel()

	cfg := ConversionConfig{
		Quotes: &mockQuotes{},
		Limits: &mockLimits{},
		Ledger: &mockLedger{},
	}

	// Swaps need a display fiat.
	_, err := NewSwapEngine(money.BTC, cfg)
	require.ErrorIs(t, err, ErrIllegalArgument)

	_, err = NewTradingSellEngine(eur, cfg)
	require.ErrorIs(t, err, ErrIllegalArgument)

	cfg.Ledger = nil
	_, err = NewTradingSellEngine(money.BTC, cfg)
	require.ErrorIs(t, err, errMissingCollaborator)
}
