// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"fmt"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

// WithdrawalConfig holds the collaborators of the fiat withdrawal engine.
type WithdrawalConfig struct {
	// Ledger creates the withdrawal orders.
	Ledger CustodialLedger
}

// FiatWithdrawalEngine withdraws a fiat balance to a linked bank account.
// The bank rail charges a flat fee and has no fee levels.
type FiatWithdrawalEngine struct {
	binding

	cfg WithdrawalConfig
}

// A compile-time assertion to ensure FiatWithdrawalEngine implements
// TxEngine.
var _ TxEngine = (*FiatWithdrawalEngine)(nil)

// NewFiatWithdrawalEngine creates a fiat withdrawal engine.
func NewFiatWithdrawalEngine(
	cfg WithdrawalConfig) (*FiatWithdrawalEngine, error) {

	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: custodial ledger",
			errMissingCollaborator)
	}

	return &FiatWithdrawalEngine{cfg: cfg}, nil
}

// Start binds the engine.
func (e *FiatWithdrawalEngine) Start(source Account, target Target,
	rates ExchangeRates) {

	precondition(checkWithdrawalInputs(source, target))

	e.bind(source, target, rates)

	log.Debugf("Withdrawal engine started: %v -> %v", source.Label(),
		target.Label())
}

// checkWithdrawalInputs ensures a fiat account is withdrawn to a bank in
// the same currency.
func checkWithdrawalInputs(source Account, target Target) error {
	if source == nil || source.Custody() != CustodyFiat ||
		!source.Asset().IsFiat() {

		return fmt.Errorf("%w: withdrawals need a fiat account",
			ErrInvalidSource)
	}

	if _, ok := target.(BankTarget); !ok {
		return fmt.Errorf("%w: %T is not a bank account",
			ErrInvalidTarget, target)
	}

	if target.Asset() != source.Asset() {
		return fmt.Errorf("%w: bank takes %v, account holds %v",
			ErrAssetMismatch, target.Asset(), source.Asset())
	}

	return nil
}

// AssertInputsValid re-checks the Start preconditions.
func (e *FiatWithdrawalEngine) AssertInputsValid() error {
	if err := e.ready(); err != nil {
		return err
	}

	return checkWithdrawalInputs(e.boundSource(), e.boundTarget())
}

// SourceAsset returns the currency being withdrawn, or the zero asset
// before Start.
func (e *FiatWithdrawalEngine) SourceAsset() money.Asset {
	source := e.boundSource()
	if source == nil {
		return money.Asset{}
	}

	return source.Asset()
}

// bank returns the bound bank target.
func (e *FiatWithdrawalEngine) bank() BankTarget {
	bank, _ := e.boundTarget().(BankTarget)

	return bank
}

// DoInitialiseTx fetches the balances and the bank rail's fee and minimum.
// The most that can be withdrawn is the actionable balance.
func (e *FiatWithdrawalEngine) DoInitialiseTx(ctx context.Context) (PendingTx,
	error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	source, bank := e.boundSource(), e.bank()

	var total, actionable, fee, minLimit money.Money

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
		fee, minLimit, err = bank.WithdrawalFeeAndMinLimit(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return PendingTx{}, fmt.Errorf("initialise withdrawal: %w", err)
	}

	asset := source.Asset()
	for _, m := range []money.Money{total, actionable, fee, minLimit} {
		if err := checkAmountAsset(m, asset); err != nil {
			return PendingTx{}, err
		}
	}

	available, err := actionable.Min(total)
	if err != nil {
		return PendingTx{}, err
	}

	ptx := newPendingTx(asset, asset)
	ptx.TotalBalance = total
	ptx.AvailableBalance = available.ClampZero()
	ptx.Fees = fee
	ptx.MinLimit = fn.Some(minLimit)
	ptx.MaxLimit = fn.Some(actionable.ClampZero())
	ptx.SelectedFiat = asset

	return ptx, nil
}

// DoUpdateAmount sets the amount. The fee is flat, so nothing else
// changes.
func (e *FiatWithdrawalEngine) DoUpdateAmount(_ context.Context,
	amount money.Money, ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkAmountAsset(amount, e.SourceAsset()); err != nil {
		return PendingTx{}, err
	}

	ptx.Amount = amount

	return invalidated(ptx), nil
}

// DoUpdateFeeLevel only accepts FeeLevelNone.
func (e *FiatWithdrawalEngine) DoUpdateFeeLevel(_ context.Context,
	ptx PendingTx, level FeeLevel, _ int64) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	return noFeeLevel(ptx, level)
}

// DoValidateAmount validates the amount against the limits and balance.
func (e *FiatWithdrawalEngine) DoValidateAmount(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	return validated(ptx)
}

// DoBuildConfirmations lists the withdrawal.
func (e *FiatWithdrawalEngine) DoBuildConfirmations(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	ptx.Confirmations = transferConfirmations(
		e.boundSource(), e.boundTarget(), "Withdrawal fee", ptx,
	)

	return ptx, nil
}

// DoExecute asks the ledger to pay the amount out to the bank account.
func (e *FiatWithdrawalEngine) DoExecute(ctx context.Context, ptx PendingTx,
	_ string) (TxResult, error) {

	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := checkExecutable(ptx); err != nil {
		return nil, err
	}

	account, err := e.bank().ReceiveAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch bank account: %w", err)
	}

	err = e.cfg.Ledger.CreateWithdrawOrder(ctx, ptx.Amount, account)
	if err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}

	log.Infof("Withdrew %v to %s", ptx.Amount, e.boundTarget().Label())

	return UnHashedResult{Amount: ptx.Amount}, nil
}

// Stop tears the engine down.
func (e *FiatWithdrawalEngine) Stop() {
	if e.unbind() && e.wasBound() {
		log.Debugf("Withdrawal engine stopped")
	}
}
