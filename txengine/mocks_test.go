package txengine

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	eur = money.Fiat("EUR")

	errTest = errors.New("test error")
)

func btc(sats int64) money.Money { return money.FromMinor(money.BTC, sats) }

func euro(cents int64) money.Money { return money.FromMinor(eur, cents) }

// mockAccount is a mock implementation of the Account interface. Only the
// balance lookups are mocked.
type mockAccount struct {
	mock.Mock

	asset   money.Asset
	custody Custody
	label   string
}

func newMockAccount(asset money.Asset, custody Custody) *mockAccount {
	return &mockAccount{
		asset:   asset,
		custody: custody,
		label:   asset.Code() + " account",
	}
}

// AccountBalance implements the BalanceOracle interface.
func (m *mockAccount) AccountBalance(ctx context.Context) (money.Money,
	error) {

	args := m.Called(ctx)

	return args.Get(0).(money.Money), args.Error(1)
}

// ActionableBalance implements the BalanceOracle interface.
func (m *mockAccount) ActionableBalance(ctx context.Context) (money.Money,
	error) {

	args := m.Called(ctx)

	return args.Get(0).(money.Money), args.Error(1)
}

func (m *mockAccount) Asset() money.Asset { return m.asset }
func (m *mockAccount) Custody() Custody   { return m.custody }
func (m *mockAccount) Label() string      { return m.label }

// withBalances sets up both balance lookups.
func (m *mockAccount) withBalances(total, actionable money.Money) {
	m.On("AccountBalance", mock.Anything).Return(total, nil)
	m.On("ActionableBalance", mock.Anything).Return(actionable, nil)
}

// mockBank is a mock implementation of the BankTarget interface.
type mockBank struct {
	mock.Mock

	asset money.Asset
}

func (m *mockBank) Asset() money.Asset { return m.asset }
func (m *mockBank) Label() string      { return "bank " + m.asset.Code() }

// WithdrawalFeeAndMinLimit implements the BankTarget interface.
func (m *mockBank) WithdrawalFeeAndMinLimit(ctx context.Context) (money.Money,
	money.Money, error) {

	args := m.Called(ctx)

	return args.Get(0).(money.Money), args.Get(1).(money.Money),
		args.Error(2)
}

// ReceiveAddress implements the BankTarget interface.
func (m *mockBank) ReceiveAddress(ctx context.Context) (string, error) {
	args := m.Called(ctx)

	return args.String(0), args.Error(1)
}

// mockRates is a mock implementation of the ExchangeRates interface.
type mockRates struct {
	mock.Mock
}

// LastPrice implements the ExchangeRates interface.
func (m *mockRates) LastPrice(from, to money.Asset) (decimal.Decimal,
	error) {

	args := m.Called(from, to)

	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// mockFeeOracle is a mock implementation of the FeeOracle interface.
type mockFeeOracle struct {
	mock.Mock
}

// FeeOptions implements the FeeOracle interface.
func (m *mockFeeOracle) FeeOptions(ctx context.Context,
	asset money.Asset) (FeeOptions, error) {

	args := m.Called(ctx, asset)

	return args.Get(0).(FeeOptions), args.Error(1)
}

// mockPreferences is a mock implementation of the FeePreferenceStore
// interface.
type mockPreferences struct {
	mock.Mock
}

// FeeLevelFor implements the FeePreferenceStore interface.
func (m *mockPreferences) FeeLevelFor(ctx context.Context,
	asset money.Asset) (fn.Option[FeeLevel], error) {

	args := m.Called(ctx, asset)

	return args.Get(0).(fn.Option[FeeLevel]), args.Error(1)
}

// SaveFeeLevel implements the FeePreferenceStore interface.
func (m *mockPreferences) SaveFeeLevel(ctx context.Context,
	asset money.Asset, level FeeLevel) error {

	args := m.Called(ctx, asset, level)

	return args.Error(0)
}

// mockLimits is a mock implementation of the LimitService interface.
type mockLimits struct {
	mock.Mock
}

// Tiers implements the LimitService interface.
func (m *mockLimits) Tiers(ctx context.Context) (KycTiers, error) {
	args := m.Called(ctx)

	return args.Get(0).(KycTiers), args.Error(1)
}

// TransferLimits implements the LimitService interface.
func (m *mockLimits) TransferLimits(ctx context.Context, fiat money.Asset,
	product Product) (TransferLimits, error) {

	args := m.Called(ctx, fiat, product)

	return args.Get(0).(TransferLimits), args.Error(1)
}

// mockLedger is a mock implementation of the CustodialLedger interface.
type mockLedger struct {
	mock.Mock
}

// CreateOrder implements the CustodialLedger interface.
func (m *mockLedger) CreateOrder(ctx context.Context,
	req OrderRequest) (Order, error) {

	args := m.Called(ctx, req)

	return args.Get(0).(Order), args.Error(1)
}

// CreateWithdrawOrder implements the CustodialLedger interface.
func (m *mockLedger) CreateWithdrawOrder(ctx context.Context,
	amount money.Money, bankAccount string) error {

	args := m.Called(ctx, amount, bankAccount)

	return args.Error(0)
}

// mockInvoices is a mock implementation of the InvoiceService interface.
type mockInvoices struct {
	mock.Mock
}

// VerifyPayment implements the InvoiceService interface.
func (m *mockInvoices) VerifyPayment(ctx context.Context,
	proposal PaymentProposal) error {

	args := m.Called(ctx, proposal)

	return args.Error(0)
}

// SubmitPayment implements the InvoiceService interface.
func (m *mockInvoices) SubmitPayment(ctx context.Context,
	proposal PaymentProposal) error {

	args := m.Called(ctx, proposal)

	return args.Error(0)
}

// mockQuotes is a mock implementation of the QuoteEngine interface.
type mockQuotes struct {
	mock.Mock
}

// Start implements the QuoteEngine interface.
func (m *mockQuotes) Start(direction quote.Direction, pair money.Pair) error {
	args := m.Called(direction, pair)

	return args.Error(0)
}

// Stop implements the QuoteEngine interface.
func (m *mockQuotes) Stop() {
	m.Called()
}

// PricedQuote implements the QuoteEngine interface.
func (m *mockQuotes) PricedQuote(ctx context.Context) (quote.PricedQuote,
	error) {

	args := m.Called(ctx)

	return args.Get(0).(quote.PricedQuote), args.Error(1)
}

// LatestQuote implements the QuoteEngine interface.
func (m *mockQuotes) LatestQuote() (quote.PricedQuote, error) {
	args := m.Called()

	return args.Get(0).(quote.PricedQuote), args.Error(1)
}

// UpdateAmount implements the QuoteEngine interface.
func (m *mockQuotes) UpdateAmount(amount money.Money) error {
	args := m.Called(amount)

	return args.Error(0)
}

// mockCoins is a mock implementation of the CoinSource interface.
type mockCoins struct {
	mock.Mock
}

// Coins implements the CoinSource interface.
func (m *mockCoins) Coins(ctx context.Context) ([]Coin, error) {
	args := m.Called(ctx)

	return args.Get(0).([]Coin), args.Error(1)
}

// mockChange is a mock implementation of the ChangeSource interface.
type mockChange struct {
	mock.Mock
}

// NewChangeScript implements the ChangeSource interface.
func (m *mockChange) NewChangeScript(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)

	return args.Get(0).([]byte), args.Error(1)
}

// mockPublisher is a mock implementation of the Publisher interface.
type mockPublisher struct {
	mock.Mock
}

// Broadcast implements the Publisher interface.
func (m *mockPublisher) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	args := m.Called(ctx, tx)

	return args.Error(0)
}

// mockEVMBackend is a mock implementation of the EVMBackend interface.
type mockEVMBackend struct {
	mock.Mock
}

// PendingNonceAt implements the EVMBackend interface.
func (m *mockEVMBackend) PendingNonceAt(ctx context.Context,
	account common.Address) (uint64, error) {

	args := m.Called(ctx, account)

	return args.Get(0).(uint64), args.Error(1)
}

// SendTransaction implements the EVMBackend interface.
func (m *mockEVMBackend) SendTransaction(ctx context.Context,
	tx *types.Transaction) error {

	args := m.Called(ctx, tx)

	return args.Error(0)
}

// mockOnChain is a mock implementation of the OnChainSender interface,
// used to observe how decorators delegate.
type mockOnChain struct {
	mock.Mock

	asset money.Asset
}

// Start implements the TxEngine interface.
func (m *mockOnChain) Start(source Account, target Target,
	rates ExchangeRates) {

	m.Called(source, target, rates)
}

// AssertInputsValid implements the TxEngine interface.
func (m *mockOnChain) AssertInputsValid() error {
	return m.Called().Error(0)
}

// SourceAsset implements the TxEngine interface.
func (m *mockOnChain) SourceAsset() money.Asset { return m.asset }

// DoInitialiseTx implements the TxEngine interface.
func (m *mockOnChain) DoInitialiseTx(ctx context.Context) (PendingTx, error) {
	args := m.Called(ctx)

	return args.Get(0).(PendingTx), args.Error(1)
}

// DoUpdateAmount implements the TxEngine interface.
func (m *mockOnChain) DoUpdateAmount(ctx context.Context, amount money.Money,
	ptx PendingTx) (PendingTx, error) {

	args := m.Called(ctx, amount, ptx)

	return args.Get(0).(PendingTx), args.Error(1)
}

// DoUpdateFeeLevel implements the TxEngine interface.
func (m *mockOnChain) DoUpdateFeeLevel(ctx context.Context, ptx PendingTx,
	level FeeLevel, customFee int64) (PendingTx, error) {

	args := m.Called(ctx, ptx, level, customFee)

	return args.Get(0).(PendingTx), args.Error(1)
}

// DoValidateAmount implements the TxEngine interface.
func (m *mockOnChain) DoValidateAmount(ctx context.Context,
	ptx PendingTx) (PendingTx, error) {

	args := m.Called(ctx, ptx)

	return args.Get(0).(PendingTx), args.Error(1)
}

// DoBuildConfirmations implements the TxEngine interface.
func (m *mockOnChain) DoBuildConfirmations(ctx context.Context,
	ptx PendingTx) (PendingTx, error) {

	args := m.Called(ctx, ptx)

	return args.Get(0).(PendingTx), args.Error(1)
}

// DoExecute implements the TxEngine interface.
func (m *mockOnChain) DoExecute(ctx context.Context, ptx PendingTx,
	secondPassword string) (TxResult, error) {

	args := m.Called(ctx, ptx, secondPassword)

	result, _ := args.Get(0).(TxResult)

	return result, args.Error(1)
}

// Stop implements the TxEngine interface.
func (m *mockOnChain) Stop() {
	m.Called()
}

// Retarget implements the OnChainSender interface.
func (m *mockOnChain) Retarget(target CryptoTarget) error {
	return m.Called(target).Error(0)
}

// PrepareTransaction implements the OnChainSender interface.
func (m *mockOnChain) PrepareTransaction(ctx context.Context, ptx PendingTx,
	secondPassword string) (*PreparedTx, error) {

	args := m.Called(ctx, ptx, secondPassword)

	prepared, _ := args.Get(0).(*PreparedTx)

	return prepared, args.Error(1)
}

// requireMoney asserts that two amounts are equal.
func requireMoney(t *testing.T, want, got money.Money) {
	t.Helper()

	require.Truef(t, want.Equal(got), "want %v, got %v", want, got)
}

// requirePrecondition asserts that f panics with a precondition failure
// wrapping target.
func requirePrecondition(t *testing.T, target error, f func()) {
	t.Helper()

	defer func() {
		t.Helper()

		r := recover()
		require.NotNil(t, r, "expected a panic")

		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.ErrorIs(t, err, target)
	}()

	f()
}
