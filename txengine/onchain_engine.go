// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

var (
	// errMissingCollaborator is returned by constructors when a required
	// dependency is nil.
	errMissingCollaborator = errors.New("missing collaborator")

	// errNoPreference marks an asset without a saved fee level.
	errNoPreference = errors.New("no saved fee level")
)

// OnChainConfig holds what every on-chain engine needs, whatever the
// chain.
type OnChainConfig struct {
	// Asset is the asset the engine sends.
	Asset money.Asset

	// FeeOracle supplies the fee tiers.
	FeeOracle FeeOracle

	// Preferences remembers the user's fee level per asset. It is
	// optional.
	Preferences FeePreferenceStore
}

// PreparedTx is a signed transaction that has not been broadcast.
type PreparedTx struct {
	// TxID is the transaction id in the chain's usual notation.
	TxID string

	// Raw is the serialized signed transaction.
	Raw []byte

	// Fee is the fee paid by the transaction.
	Fee money.Money

	// VSize is the virtual size in vbytes for UTXO chains and the gas
	// limit for EVM chains.
	VSize int64

	// Exactly one of the two is set, depending on the chain.
	btcTx *wire.MsgTx
	evmTx *types.Transaction
}

// legRequest is what a chain leg needs to price or build a send.
type legRequest struct {
	amount     money.Money
	level      FeeLevel
	customFee  int64
	opts       FeeOptions
	address    string
	actionable money.Money
}

// legEstimate is a chain leg's view of a send.
type legEstimate struct {
	fees      money.Money
	available money.Money
	state     EngineContext
}

// chainLeg holds the chain specific parts of the on-chain engine.
type chainLeg interface {
	// feeAsset is the asset fees are paid in.
	feeAsset() money.Asset

	// feeLevels is the legal fee-level set.
	feeLevels() fn.Set[FeeLevel]

	// checkCustomFee rejects custom fee rates the leg will not use.
	checkCustomFee(customFee int64) error

	// checkAddress rejects addresses that are not valid on the chain.
	checkAddress(address string) error

	// limits returns the smallest and largest amounts the chain can
	// send to address.
	limits(address string) (money.Money, money.Money)

	// estimate prices a send.
	estimate(ctx context.Context, req legRequest) (legEstimate, error)

	// build authors and signs a send.
	build(ctx context.Context, req legRequest,
		secondPassword string) (*PreparedTx, error)

	// publish broadcasts a prepared send.
	publish(ctx context.Context, tx *PreparedTx) error
}

// OnChainEngine sends an asset from a non-custodial account to an on-chain
// address. The chain specific work is done by a UTXO or an EVM leg.
type OnChainEngine struct {
	binding

	cfg OnChainConfig
	leg chainLeg
}

// A compile-time assertion to ensure OnChainEngine implements TxEngine.
var _ TxEngine = (*OnChainEngine)(nil)

// newOnChainEngine checks the shared config and wraps the leg.
func newOnChainEngine(cfg OnChainConfig, leg chainLeg) (*OnChainEngine,
	error) {

	if cfg.Asset.IsZero() || cfg.Asset.IsFiat() {
		return nil, fmt.Errorf("%w: on-chain engine needs a crypto "+
			"asset, got %v", ErrIllegalArgument, cfg.Asset)
	}

	if cfg.FeeOracle == nil {
		return nil, fmt.Errorf("%w: fee oracle", errMissingCollaborator)
	}

	return &OnChainEngine{cfg: cfg, leg: leg}, nil
}

// Start binds the engine. The source must be a non-custodial account and
// the target an on-chain target, both in the engine's asset.
func (e *OnChainEngine) Start(source Account, target Target,
	rates ExchangeRates) {

	precondition(e.checkInputs(source, target))

	e.bind(source, target, rates)

	log.Debugf("On-chain %v engine started: %v -> %v", e.cfg.Asset,
		source.Label(), target.Label())
}

// checkInputs checks the source and target against the engine's asset.
func (e *OnChainEngine) checkInputs(source Account, target Target) error {
	if source == nil || source.Custody() != CustodyNonCustodial {
		return fmt.Errorf("%w: on-chain engine needs a non-custodial "+
			"source", ErrInvalidSource)
	}

	if source.Asset() != e.cfg.Asset {
		return fmt.Errorf("%w: source holds %v, engine sends %v",
			ErrAssetMismatch, source.Asset(), e.cfg.Asset)
	}

	if _, ok := target.(CryptoTarget); !ok {
		return fmt.Errorf("%w: %T is not an on-chain target",
			ErrInvalidTarget, target)
	}

	if target.Asset() != e.cfg.Asset {
		return fmt.Errorf("%w: target expects %v, engine sends %v",
			ErrAssetMismatch, target.Asset(), e.cfg.Asset)
	}

	return nil
}

// AssertInputsValid re-checks the Start preconditions.
func (e *OnChainEngine) AssertInputsValid() error {
	if err := e.ready(); err != nil {
		return err
	}

	return e.checkInputs(e.boundSource(), e.boundTarget())
}

// SourceAsset returns the asset the engine sends.
func (e *OnChainEngine) SourceAsset() money.Asset {
	return e.cfg.Asset
}

// Retarget points the engine at a new on-chain target in the same asset.
// Decorators use it once they learn the real destination.
func (e *OnChainEngine) Retarget(target CryptoTarget) error {
	if err := e.ready(); err != nil {
		return err
	}

	if target.Asset() != e.cfg.Asset {
		return fmt.Errorf("%w: target expects %v, engine sends %v",
			ErrAssetMismatch, target.Asset(), e.cfg.Asset)
	}

	e.setTarget(target)

	return nil
}

// address returns the receive address of the current target.
func (e *OnChainEngine) address() string {
	target, ok := e.boundTarget().(CryptoTarget)
	if !ok {
		return ""
	}

	return target.ReceiveAddress()
}

// DoInitialiseTx fetches the balances and returns a zero-amount pending tx
// at the user's preferred fee level.
func (e *OnChainEngine) DoInitialiseTx(ctx context.Context) (PendingTx,
	error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	source := e.boundSource()

	var (
		total, actionable money.Money
		preferred         fn.Option[FeeLevel]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = source.AccountBalance(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		actionable, err = source.ActionableBalance(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		preferred, err = e.preferredLevel(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return PendingTx{}, fmt.Errorf("initialise %v tx: %w",
			e.cfg.Asset, err)
	}

	available, err := actionable.Min(total)
	if err != nil {
		return PendingTx{}, fmt.Errorf("%w: balances: %w",
			ErrAssetMismatch, err)
	}

	minLimit, maxLimit := e.leg.limits(e.address())

	ptx := newPendingTx(e.cfg.Asset, e.leg.feeAsset())
	ptx.TotalBalance = total
	ptx.AvailableBalance = available.ClampZero()
	ptx.AvailableFeeLevels = e.leg.feeLevels()
	ptx.FeeLevel = preferred.UnwrapOr(FeeLevelRegular)
	ptx.MinLimit = fn.Some(minLimit)
	ptx.MaxLimit = fn.Some(maxLimit)

	log.Tracef("Initialised %v tx: %v", e.cfg.Asset, spewPendingTx(ptx))

	return ptx, nil
}

// preferredLevel returns the saved fee level if it is one the user can
// pick again. Custom levels are never restored since the custom fee is not
// saved with them.
func (e *OnChainEngine) preferredLevel(
	ctx context.Context) (fn.Option[FeeLevel], error) {

	if e.cfg.Preferences == nil {
		return fn.None[FeeLevel](), nil
	}

	saved, err := e.cfg.Preferences.FeeLevelFor(ctx, e.cfg.Asset)
	if err != nil {
		return fn.None[FeeLevel](), fmt.Errorf("load fee preference: "+
			"%w", err)
	}

	level, err := saved.UnwrapOrErr(errNoPreference)
	if err != nil {
		return fn.None[FeeLevel](), nil
	}

	if level == FeeLevelCustom || !e.leg.feeLevels().Contains(level) {
		log.Debugf("Ignoring saved %v fee level %v", e.cfg.Asset, level)

		return fn.None[FeeLevel](), nil
	}

	return fn.Some(level), nil
}

// DoUpdateAmount sets the amount and recomputes fees and balances.
func (e *OnChainEngine) DoUpdateAmount(ctx context.Context,
	amount money.Money, ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkAmountAsset(amount, e.cfg.Asset); err != nil {
		return PendingTx{}, err
	}

	ptx.Amount = amount

	return e.reprice(ctx, invalidated(ptx))
}

// DoUpdateFeeLevel selects a fee level, recomputes the fees and saves the
// level as the user's preference for the asset.
func (e *OnChainEngine) DoUpdateFeeLevel(ctx context.Context, ptx PendingTx,
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

	if level == FeeLevelCustom {
		if err := e.leg.checkCustomFee(customFee); err != nil {
			return PendingTx{}, err
		}
	}

	updated, err := e.reprice(
		ctx, invalidated(withFeeLevel(ptx, level, customFee)),
	)
	if err != nil {
		return PendingTx{}, err
	}

	if e.cfg.Preferences != nil {
		err := e.cfg.Preferences.SaveFeeLevel(ctx, e.cfg.Asset, level)
		if err != nil {
			log.Warnf("Unable to save %v fee level for %v: %v",
				level, e.cfg.Asset, err)
		}
	}

	return updated, nil
}

// reprice refreshes the balances and fee of ptx for its amount and fee
// level. Nothing is returned unless every lookup succeeds.
func (e *OnChainEngine) reprice(ctx context.Context,
	ptx PendingTx) (PendingTx, error) {

	source := e.boundSource()

	var (
		total, actionable money.Money
		opts              FeeOptions
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = source.AccountBalance(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		actionable, err = source.ActionableBalance(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		opts, err = e.cfg.FeeOracle.FeeOptions(gctx, e.cfg.Asset)

		return err
	})

	if err := g.Wait(); err != nil {
		return PendingTx{}, fmt.Errorf("price %v tx: %w", e.cfg.Asset,
			err)
	}

	est, err := e.leg.estimate(ctx, legRequest{
		amount:     ptx.Amount,
		level:      ptx.FeeLevel,
		customFee:  ptx.CustomFeeAmount,
		opts:       opts,
		address:    e.address(),
		actionable: actionable,
	})
	if err != nil {
		return PendingTx{}, err
	}

	available, err := est.available.Min(total)
	if err != nil {
		return PendingTx{}, fmt.Errorf("%w: balances: %w",
			ErrAssetMismatch, err)
	}

	ptx.TotalBalance = total
	ptx.AvailableBalance = available.ClampZero()
	ptx.Fees = est.fees
	ptx.EngineState = est.state

	return ptx, nil
}

// DoValidateAmount validates the amount against the limits and balances.
// When fees are paid in another asset, the fee balance must cover them
// too.
func (e *OnChainEngine) DoValidateAmount(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkAmountAsset(ptx.Amount, e.cfg.Asset); err != nil {
		return PendingTx{}, err
	}

	state, err := validateAmount(ptx)
	if err != nil {
		return PendingTx{}, err
	}

	if state == CanExecute {
		if c, ok := ptx.EngineState.(OnChainContext); ok {
			cmp, err := c.FeeBalance.Cmp(ptx.Fees)
			if err != nil {
				return PendingTx{}, fmt.Errorf("%w: fee "+
					"balance: %w", ErrAssetMismatch, err)
			}

			if cmp < 0 {
				state = InsufficientFunds
			}
		}
	}

	ptx.ValidationState = state

	return ptx, nil
}

// DoBuildConfirmations fills in the summary rows.
func (e *OnChainEngine) DoBuildConfirmations(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	ptx.Confirmations = transferConfirmations(
		e.boundSource(), e.boundTarget(), "Network fee", ptx,
	)

	return ptx, nil
}

// PrepareTransaction builds and signs the transaction for ptx without
// broadcasting it.
func (e *OnChainEngine) PrepareTransaction(ctx context.Context, ptx PendingTx,
	secondPassword string) (*PreparedTx, error) {

	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := checkExecutable(ptx); err != nil {
		return nil, err
	}

	address := e.address()
	if err := e.leg.checkAddress(address); err != nil {
		return nil, err
	}

	opts, err := e.cfg.FeeOracle.FeeOptions(ctx, e.cfg.Asset)
	if err != nil {
		return nil, fmt.Errorf("fetch fee options: %w", err)
	}

	prepared, err := e.leg.build(ctx, legRequest{
		amount:    ptx.Amount,
		level:     ptx.FeeLevel,
		customFee: ptx.CustomFeeAmount,
		opts:      opts,
		address:   address,
	}, secondPassword)
	if err != nil {
		return nil, err
	}

	log.Debugf("Prepared %v tx %s paying %v to %s", e.cfg.Asset,
		prepared.TxID, ptx.Amount, address)

	return prepared, nil
}

// DoExecute signs and broadcasts the transaction.
func (e *OnChainEngine) DoExecute(ctx context.Context, ptx PendingTx,
	secondPassword string) (TxResult, error) {

	prepared, err := e.PrepareTransaction(ctx, ptx, secondPassword)
	if err != nil {
		return nil, err
	}

	if err := e.leg.publish(ctx, prepared); err != nil {
		return nil, fmt.Errorf("publish %s: %w", prepared.TxID, err)
	}

	log.Infof("Published %v tx %s", e.cfg.Asset, prepared.TxID)

	return HashedResult{TxID: prepared.TxID, Amount: ptx.Amount}, nil
}

// Stop tears the engine down.
func (e *OnChainEngine) Stop() {
	if e.unbind() && e.wasBound() {
		log.Debugf("On-chain %v engine stopped", e.cfg.Asset)
	}
}
