package txengine

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testOrderID = uuid.MustParse("9b2d1f2e-7c43-4d4e-9a51-3f0e6b7c8d90")

// sellHarness is a sell engine around a mocked on-chain engine.
type sellHarness struct {
	engine  *SellEngine
	source  *mockAccount
	target  *AccountTarget
	wrapped *mockOnChain
	quotes  *mockQuotes
	limits  *mockLimits
	ledger  *mockLedger
	rates   *mockRates
	priced  quote.PricedQuote
}

// newSellHarness creates and starts a BTC to EUR sell engine.
func newSellHarness(t *testing.T) *sellHarness {
	t.Helper()

	h := &sellHarness{
		source: newMockAccount(money.BTC, CustodyNonCustodial),
		target: &AccountTarget{
			Account: newMockAccount(eur, CustodyFiat),
		},
		wrapped: &mockOnChain{asset: money.BTC},
		quotes:  &mockQuotes{},
		limits:  &mockLimits{},
		ledger:  &mockLedger{},
		rates:   &mockRates{},
	}

	pair := money.NewPair(money.BTC, eur)
	h.priced = quote.PricedQuote{
		Price: decimal.NewFromInt(50_000),
		Quote: quote.Quote{
			ID:                   "q1",
			Pair:                 pair,
			Direction:            quote.DirectionFromUserKey,
			SampleDepositAddress: "sample",
			NetworkFee:           btc(500),
		},
	}

	engine, err := NewSellEngine(ConversionConfig{
		Quotes:     h.quotes,
		Limits:     h.limits,
		Ledger:     h.ledger,
		NewOrderID: func() uuid.UUID { return testOrderID },
	}, h.wrapped)
	require.NoError(t, err)
	h.engine = engine

	h.quotes.On("Start", quote.DirectionFromUserKey, pair).
		Return(nil).Once()
	h.wrapped.On("Start", h.source, mock.Anything, h.rates).Once()
	h.quotes.On("Stop").Once()
	h.wrapped.On("Stop").Once()

	h.engine.Start(h.source, h.target, h.rates)

	t.Cleanup(func() {
		h.engine.Stop()
		h.engine.Stop()

		h.wrapped.AssertExpectations(t)
		h.quotes.AssertExpectations(t)
		h.limits.AssertExpectations(t)
		h.ledger.AssertExpectations(t)
	})

	return h
}

// retargetedTo matches on-chain targets paying address.
func retargetedTo(address string) interface{} {
	return mock.MatchedBy(func(target CryptoTarget) bool {
		return target.ReceiveAddress() == address
	})
}

// onChainTx is what the wrapped engine hands back from initialisation.
func onChainTx() PendingTx {
	ptx := newPendingTx(money.BTC, money.BTC)
	ptx.TotalBalance = btc(2_000_000)
	ptx.AvailableBalance = btc(1_990_000)
	ptx.AvailableFeeLevels = FeeLevels(
		FeeLevelRegular, FeeLevelPriority, FeeLevelCustom,
	)
	ptx.FeeLevel = FeeLevelRegular
	ptx.MinLimit = fn.Some(btc(294))
	ptx.MaxLimit = fn.Some(btc(btcutil.MaxSatoshi))

	return ptx
}

// initialise runs DoInitialiseTx with the happy-path expectations.
func (h *sellHarness) initialise(t *testing.T) PendingTx {
	t.Helper()

	h.limits.On("Tiers", mock.Anything).
		Return(KycTiers{Current: KycTierGold}, nil).Once()
	h.limits.On("TransferLimits", mock.Anything, eur, ProductTrade).
		Return(TransferLimits{
			Min:      euro(1_000),
			MaxOrder: euro(500_000),
			Max:      euro(1_000_000),
		}, nil).Once()
	h.quotes.On("PricedQuote", mock.Anything).Return(h.priced, nil).Once()
	h.quotes.On("LatestQuote").Return(h.priced, nil)
	h.rates.On("LastPrice", money.BTC, eur).
		Return(decimal.NewFromInt(50_000), nil).Once()
	h.wrapped.On("Retarget", retargetedTo("sample")).Return(nil).Once()
	h.wrapped.On("DoInitialiseTx", mock.Anything).
		Return(onChainTx(), nil).Once()

	ptx, err := h.engine.DoInitialiseTx(t.Context())
	require.NoError(t, err)

	return ptx
}

// TestSellInitialise checks that the trade limits are converted to the
// source asset and overlaid on the on-chain pending tx.
func TestSellInitialise(t *testing.T) {
	t.Parallel()

	h := newSellHarness(t)
	ptx := h.initialise(t)

	// 10 EUR at 50k EUR/BTC is 20k sat, plus the 500 sat network fee.
	requireMoney(t, btc(20_500), ptx.MinLimit.UnwrapOr(money.Money{}))
	requireMoney(t, btc(20_000_000), ptx.MaxLimit.UnwrapOr(money.Money{}))

	require.Equal(t, FeeLevelPriority, ptx.FeeLevel)
	require.Equal(t, FeeLevels(FeeLevelPriority), ptx.AvailableFeeLevels)
	require.Equal(t, eur, ptx.SelectedFiat)
	require.Equal(t, ConversionContext{
		UserTier: KycTierGold, QuoteID: "q1",
	}, ptx.EngineState)

	requireMoney(t, btc(2_000_000), ptx.TotalBalance)
	requireMoney(t, btc(1_990_000), ptx.AvailableBalance)
}

// TestSellUpdateAmountDelegates checks that an amount update re-prices the
// quote and the wrapped engine exactly once each and passes the wrapped
// engine's figures through.
func TestSellUpdateAmountDelegates(t *testing.T) {
	t.Parallel()

	h := newSellHarness(t)
	ptx := h.initialise(t)

	amount := btc(30_000)
	inner := ptx
	inner.EngineState = nil
	inner.Amount = amount
	inner.Fees = btc(777)
	inner.TotalBalance = btc(1_000_000)
	inner.AvailableBalance = btc(900_000)

	h.quotes.On("UpdateAmount", amount).Return(nil).Once()
	h.wrapped.On("DoUpdateAmount", mock.Anything, amount,
		mock.MatchedBy(func(p PendingTx) bool {
			return p.EngineState == nil
		}),
	).Return(inner, nil).Once()

	updated, err := h.engine.DoUpdateAmount(t.Context(), amount, ptx)
	require.NoError(t, err)

	h.quotes.AssertNumberOfCalls(t, "UpdateAmount", 1)
	h.wrapped.AssertNumberOfCalls(t, "DoUpdateAmount", 1)

	requireMoney(t, amount, updated.Amount)
	requireMoney(t, btc(777), updated.Fees)
	requireMoney(t, btc(1_000_000), updated.TotalBalance)
	requireMoney(t, btc(900_000), updated.AvailableBalance)
	require.Equal(t, ptx.EngineState, updated.EngineState)

	_, err = h.engine.DoUpdateAmount(t.Context(), euro(1), ptx)
	require.ErrorIs(t, err, ErrAssetMismatch)
}

// TestSellPendingOrdersLimit checks that a pending orders error from the
// limit service or the quote provider ends initialisation early.
func TestSellPendingOrdersLimit(t *testing.T) {
	t.Parallel()

	limitErr := fmt.Errorf("nabu: %w", ErrPendingOrdersLimitReached)

	tests := []struct {
		name  string
		setup func(h *sellHarness)
	}{
		{
			name: "limit service",
			setup: func(h *sellHarness) {
				h.limits.On("Tiers", mock.Anything).
					Return(KycTiers{}, limitErr).Once()
				h.limits.On("TransferLimits", mock.Anything,
					eur, ProductTrade).
					Return(TransferLimits{}, nil).Maybe()
			},
		},
		{
			name: "quote provider",
			setup: func(h *sellHarness) {
				h.limits.On("Tiers", mock.Anything).
					Return(KycTiers{}, nil).Once()
				h.limits.On("TransferLimits", mock.Anything,
					eur, ProductTrade).
					Return(TransferLimits{
						Min: euro(1), Max: euro(2),
					}, nil).Once()
				h.quotes.On("PricedQuote", mock.Anything).
					Return(quote.PricedQuote{}, limitErr).
					Once()
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newSellHarness(t)
			tc.setup(h)

			ptx, err := h.engine.DoInitialiseTx(t.Context())
			require.NoError(t, err)

			require.Equal(t, PendingOrdersLimitReached,
				ptx.ValidationState)
			requireMoney(t, btc(0), ptx.TotalBalance)
			requireMoney(t, btc(0), ptx.AvailableBalance)
			require.Equal(t, FeeLevelNone, ptx.FeeLevel)
			require.True(t, ptx.MinLimit.IsNone())
			require.True(t, ptx.MaxLimit.IsNone())

			h.wrapped.AssertNotCalled(
				t, "DoInitialiseTx", mock.Anything,
			)
			h.wrapped.AssertNotCalled(t, "Retarget", mock.Anything)
			h.rates.AssertNotCalled(
				t, "LastPrice", mock.Anything, mock.Anything,
			)

			// The state survives validation.
			checked, err := h.engine.DoValidateAmount(
				t.Context(), ptx,
			)
			require.NoError(t, err)
			require.Equal(t, PendingOrdersLimitReached,
				checked.ValidationState)
		})
	}
}

// TestSellExecute checks that the order's deposit address is paid.
func TestSellExecute(t *testing.T) {
	t.Parallel()

	h := newSellHarness(t)
	ptx := h.initialise(t)
	ptx.Amount = btc(50_000)

	_, err := h.engine.DoExecute(t.Context(), ptx, "pw")
	require.ErrorIs(t, err, ErrNotExecutable)

	ptx.ValidationState = CanExecute

	h.ledger.On("CreateOrder", mock.Anything,
		mock.MatchedBy(func(req OrderRequest) bool {
			return req.ID == testOrderID &&
				req.Direction == quote.DirectionFromUserKey &&
				req.QuoteID == "q1" &&
				req.Amount.Equal(btc(50_000)) &&
				req.Pair == money.NewPair(money.BTC, eur)
		}),
	).Return(Order{ID: "o1", DepositAddress: "deposit"}, nil).Once()
	h.wrapped.On("Retarget", retargetedTo("deposit")).Return(nil).Once()
	h.wrapped.On("DoExecute", mock.Anything,
		mock.MatchedBy(func(p PendingTx) bool {
			return p.EngineState == nil
		}), "pw",
	).Return(HashedResult{TxID: "tx1", Amount: btc(50_000)}, nil).Once()

	result, err := h.engine.DoExecute(t.Context(), ptx, "pw")
	require.NoError(t, err)

	unhashed, ok := result.(UnHashedResult)
	require.True(t, ok)
	require.Equal(t, "o1", unhashed.OrderID)
	requireMoney(t, btc(50_000), unhashed.Amount)
}

// TestSellExecuteMissingDeposit checks that nothing is broadcast for an
// order without a deposit address.
func TestSellExecuteMissingDeposit(t *testing.T) {
	t.Parallel()

	h := newSellHarness(t)
	ptx := h.initialise(t)
	ptx.Amount = btc(50_000)
	ptx.ValidationState = CanExecute

	h.ledger.On("CreateOrder", mock.Anything, mock.Anything).
		Return(Order{ID: "o2"}, nil).Once()

	_, err := h.engine.DoExecute(t.Context(), ptx, "")
	require.ErrorIs(t, err, ErrMissingDepositAddress)

	h.wrapped.AssertNotCalled(
		t, "DoExecute", mock.Anything, mock.Anything, mock.Anything,
	)
}

// TestSellStartPreconditions checks that bad inputs panic before the quote
// stream or the wrapped engine is started.
func TestSellStartPreconditions(t *testing.T) {
	t.Parallel()

	fiatTarget := &AccountTarget{Account: newMockAccount(eur, CustodyFiat)}

	tests := []struct {
		name    string
		source  Account
		target  Target
		wantErr error
	}{
		{
			name:    "custodial source",
			source:  newMockAccount(money.BTC, CustodyTrading),
			target:  fiatTarget,
			wantErr: ErrInvalidSource,
		},
		{
			name: "wrong asset",
			source: newMockAccount(
				money.ETH, CustodyNonCustodial,
			),
			target:  fiatTarget,
			wantErr: ErrAssetMismatch,
		},
		{
			name: "address target",
			source: newMockAccount(
				money.BTC, CustodyNonCustodial,
			),
			target:  NewAddressTarget(money.BTC, "addr", ""),
			wantErr: ErrInvalidTarget,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quotes := &mockQuotes{}
			wrapped := &mockOnChain{asset: money.BTC}
			engine, err := NewSellEngine(ConversionConfig{
				Quotes: quotes,
				Limits: &mockLimits{},
				Ledger: &mockLedger{},
			}, wrapped)
			require.NoError(t, err)

			requirePrecondition(t, tc.wantErr, func() {
				engine.Start(tc.source, tc.target, &mockRates{})
			})

			quotes.AssertNotCalled(
				t, "Start", mock.Anything, mock.Anything,
			)
			wrapped.AssertNotCalled(t, "Start", mock.Anything,
				mock.Anything, mock.Anything)
		})
	}
}

// TestSellStartFailures checks that a failed start leaves no quote stream or
// wrapped engine running.
func TestSellStartFailures(t *testing.T) {
	t.Parallel()

	source := newMockAccount(money.BTC, CustodyNonCustodial)
	target := &AccountTarget{Account: newMockAccount(eur, CustodyFiat)}
	pair := money.NewPair(money.BTC, eur)
	errQuotes := fmt.Errorf("quote service down")

	newEngine := func(t *testing.T) (*SellEngine, *mockQuotes,
		*mockOnChain) {

		quotes := &mockQuotes{}
		wrapped := &mockOnChain{asset: money.BTC}
		engine, err := NewSellEngine(ConversionConfig{
			Quotes: quotes,
			Limits: &mockLimits{},
			Ledger: &mockLedger{},
		}, wrapped)
		require.NoError(t, err)

		return engine, quotes, wrapped
	}

	t.Run("wrapped engine panics", func(t *testing.T) {
		t.Parallel()

		engine, quotes, wrapped := newEngine(t)
		wrapped.On("Start", source, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				panic(ErrEngineAlreadyStarted)
			}).Once()

		requirePrecondition(t, ErrEngineAlreadyStarted, func() {
			engine.Start(source, target, &mockRates{})
		})

		quotes.AssertNotCalled(
			t, "Start", mock.Anything, mock.Anything,
		)
		wrapped.AssertExpectations(t)
	})

	t.Run("quote stream fails", func(t *testing.T) {
		t.Parallel()

		engine, quotes, wrapped := newEngine(t)
		wrapped.On("Start", source, mock.Anything, mock.Anything).
			Once()
		quotes.On("Start", quote.DirectionFromUserKey, pair).
			Return(errQuotes).Once()
		wrapped.On("Stop").Once()

		requirePrecondition(t, errQuotes, func() {
			engine.Start(source, target, &mockRates{})
		})

		// The engine is already stopped.
		engine.Stop()

		quotes.AssertNotCalled(t, "Stop")
		quotes.AssertExpectations(t)
		wrapped.AssertExpectations(t)
	})
}

// TestTighterLimits checks how trade limits combine with chain limits.
func TestTighterLimits(t *testing.T) {
	t.Parallel()

	minLimit, maxLimit := tighterLimits(
		btc(100), btc(1_000), fn.Some(btc(294)), fn.Some(btc(500)),
	)
	requireMoney(t, btc(294), minLimit)
	requireMoney(t, btc(500), maxLimit)

	minLimit, maxLimit = tighterLimits(
		btc(100), btc(1_000),
		fn.None[money.Money](), fn.None[money.Money](),
	)
	requireMoney(t, btc(100), minLimit)
	requireMoney(t, btc(1_000), maxLimit)
}
