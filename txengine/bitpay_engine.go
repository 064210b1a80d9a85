// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txengine

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
)

// BitpayConfig holds the collaborators of the invoice payment engine.
type BitpayConfig struct {
	// Invoices verifies and accepts the signed payment. The processor
	// broadcasts it.
	Invoices InvoiceService

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time
}

// BitpayEngine pays a merchant invoice from a non-custodial account. The
// invoice fixes the amount, and the transaction always pays the priority
// fee so it confirms inside the payment window.
type BitpayEngine struct {
	binding

	cfg     BitpayConfig
	wrapped OnChainSender
}

// A compile-time assertion to ensure BitpayEngine implements TxEngine.
var _ TxEngine = (*BitpayEngine)(nil)

// NewBitpayEngine creates an invoice payment engine around an on-chain
// engine. Only invoices in the wrapped engine's asset can be paid.
func NewBitpayEngine(cfg BitpayConfig,
	wrapped OnChainSender) (*BitpayEngine, error) {

	if cfg.Invoices == nil {
		return nil, fmt.Errorf("%w: invoice service",
			errMissingCollaborator)
	}

	if wrapped == nil {
		return nil, fmt.Errorf("%w: on-chain engine",
			errMissingCollaborator)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &BitpayEngine{cfg: cfg, wrapped: wrapped}, nil
}

// Start binds the engine and starts the wrapped engine against the
// invoice's payment address.
func (e *BitpayEngine) Start(source Account, target Target,
	rates ExchangeRates) {

	precondition(e.checkInputs(source, target))

	e.bind(source, target, rates)
	e.wrapped.Start(source, target, rates)

	log.Debugf("Invoice engine started: %v -> %v", source.Label(),
		target.Label())
}

// checkInputs ensures the source and the invoice are in the asset the
// engine pays with.
func (e *BitpayEngine) checkInputs(source Account, target Target) error {
	asset := e.wrapped.SourceAsset()

	if source == nil || source.Custody() != CustodyNonCustodial {
		return fmt.Errorf("%w: invoices are paid from non-custodial "+
			"accounts", ErrInvalidSource)
	}

	if source.Asset() != asset {
		return fmt.Errorf("%w: source holds %v, engine pays in %v",
			ErrAssetMismatch, source.Asset(), asset)
	}

	invoice, ok := target.(*InvoiceTarget)
	if !ok {
		return fmt.Errorf("%w: %T is not an invoice", ErrInvalidTarget,
			target)
	}

	if invoice.Asset() != asset {
		return fmt.Errorf("%w: invoice is in %v, engine pays in %v",
			ErrAssetMismatch, invoice.Asset(), asset)
	}

	if !invoice.Amount.IsPositive() {
		return fmt.Errorf("%w: invoice %s has no amount",
			ErrIllegalArgument, invoice.InvoiceID)
	}

	return nil
}

// AssertInputsValid checks the wrapped engine, then the invoice.
func (e *BitpayEngine) AssertInputsValid() error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.wrapped.AssertInputsValid(); err != nil {
		return err
	}

	return e.checkInputs(e.boundSource(), e.boundTarget())
}

// SourceAsset returns the asset the invoice is paid in.
func (e *BitpayEngine) SourceAsset() money.Asset {
	return e.wrapped.SourceAsset()
}

// invoice returns the bound invoice.
func (e *BitpayEngine) invoice() *InvoiceTarget {
	invoice, _ := e.boundTarget().(*InvoiceTarget)

	return invoice
}

// DoInitialiseTx initialises the wrapped engine and prices the invoice
// amount at the priority fee.
func (e *BitpayEngine) DoInitialiseTx(ctx context.Context) (PendingTx,
	error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	invoice := e.invoice()

	ptx, err := e.wrapped.DoInitialiseTx(ctx)
	if err != nil {
		return PendingTx{}, err
	}

	ptx = withFeeLevel(ptx, FeeLevelPriority, CustomFeeUnset)
	ptx.AvailableFeeLevels = FeeLevels(FeeLevelPriority)

	ptx, err = e.wrapped.DoUpdateAmount(ctx, invoice.Amount, ptx)
	if err != nil {
		return PendingTx{}, err
	}

	ptx.EngineState = InvoiceContext{
		InvoiceID: invoice.InvoiceID,
		Merchant:  invoice.Merchant,
		ExpiresAt: invoice.ExpiresAt,
		Leg:       ptx.EngineState,
	}

	return ptx, nil
}

// DoUpdateAmount re-prices the invoice amount. The amount passed in is
// ignored: the invoice decides how much is paid.
func (e *BitpayEngine) DoUpdateAmount(ctx context.Context, _ money.Money,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	updated, err := e.wrapped.DoUpdateAmount(
		ctx, e.invoice().Amount, unwrapLeg(ptx),
	)
	if err != nil {
		return PendingTx{}, err
	}

	return invalidated(rewrap(ptx, updated)), nil
}

// DoUpdateFeeLevel only accepts the priority level, which is already set.
func (e *BitpayEngine) DoUpdateFeeLevel(_ context.Context, ptx PendingTx,
	level FeeLevel, customFee int64) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	if err := checkFeeLevelChange(ptx, level, customFee); err != nil {
		return PendingTx{}, err
	}

	return ptx, nil
}

// DoValidateAmount validates through the wrapped engine.
func (e *BitpayEngine) DoValidateAmount(ctx context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	checked, err := e.wrapped.DoValidateAmount(ctx, unwrapLeg(ptx))
	if err != nil {
		return PendingTx{}, err
	}

	return rewrap(ptx, checked), nil
}

// DoBuildConfirmations lists the payment, the invoice and its expiry.
func (e *BitpayEngine) DoBuildConfirmations(_ context.Context,
	ptx PendingTx) (PendingTx, error) {

	if err := e.ready(); err != nil {
		return PendingTx{}, err
	}

	invoice := e.invoice()
	items := transferConfirmations(
		e.boundSource(), invoice, "Network fee", ptx,
	)
	items = append(items,
		ConfirmationItem{
			Kind:  ConfirmInvoice,
			Label: "Invoice",
			Value: invoice.InvoiceID,
		},
		ConfirmationItem{
			Kind:  ConfirmExpiry,
			Label: "Expires",
			Value: invoice.ExpiresAt.UTC().Format(time.RFC3339),
		},
	)
	ptx.Confirmations = items

	return ptx, nil
}

// DoExecute signs the payment and hands it to the invoice processor, which
// verifies it and broadcasts it.
func (e *BitpayEngine) DoExecute(ctx context.Context, ptx PendingTx,
	secondPassword string) (TxResult, error) {

	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := checkExecutable(ptx); err != nil {
		return nil, err
	}

	invoice := e.invoice()
	if invoice.Expired(e.cfg.Now()) {
		return nil, fmt.Errorf("%w: invoice %s expired at %v",
			ErrInvoiceExpired, invoice.InvoiceID, invoice.ExpiresAt)
	}

	prepared, err := e.wrapped.PrepareTransaction(
		ctx, unwrapLeg(ptx), secondPassword,
	)
	if err != nil {
		return nil, err
	}

	proposal := PaymentProposal{
		InvoiceID:    invoice.InvoiceID,
		Chain:        e.SourceAsset().Code(),
		RawTx:        hex.EncodeToString(prepared.Raw),
		WeightedSize: prepared.VSize,
	}

	if err := e.cfg.Invoices.VerifyPayment(ctx, proposal); err != nil {
		return nil, fmt.Errorf("verify payment of invoice %s: %w",
			invoice.InvoiceID, err)
	}

	if err := e.cfg.Invoices.SubmitPayment(ctx, proposal); err != nil {
		return nil, fmt.Errorf("submit payment of invoice %s: %w",
			invoice.InvoiceID, err)
	}

	log.Infof("Paid invoice %s with tx %s", invoice.InvoiceID,
		prepared.TxID)

	return HashedResult{TxID: prepared.TxID, Amount: invoice.Amount}, nil
}

// Stop stops the wrapped engine.
func (e *BitpayEngine) Stop() {
	if !e.unbind() {
		return
	}

	e.wrapped.Stop()

	if e.wasBound() {
		log.Debugf("Invoice engine stopped")
	}
}
