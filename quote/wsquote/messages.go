// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wsquote

import (
	"fmt"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/btcsuite/txengine/txengine"
	"github.com/shopspring/decimal"
)

// methodQuote is the only request method the provider speaks.
const methodQuote = "quote"

type request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params requestParams `json:"params"`
}

type requestParams struct {
	Direction string `json:"direction"`
	Pair      string `json:"pair"`
}

type response struct {
	ID     uint64         `json:"id"`
	Result *quoteResult   `json:"result,omitempty"`
	Error  *responseError `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// asError maps a provider error onto the error callers match on.
func (e *responseError) asError() error {
	if e.Code == errCodePendingOrders {
		return fmt.Errorf("%w: %s",
			txengine.ErrPendingOrdersLimitReached, e.Message)
	}

	return fmt.Errorf("%w: %s: %s", ErrProvider, e.Code, e.Message)
}

type priceTier struct {
	Volume decimal.Decimal `json:"volume"`
	Price  decimal.Decimal `json:"price"`
}

type quoteResult struct {
	ID                   string          `json:"id"`
	Pair                 string          `json:"pair"`
	SampleDepositAddress string          `json:"sampleDepositAddress"`
	NetworkFee           decimal.Decimal `json:"networkFee"`
	NetworkFeeCurrency   string          `json:"networkFeeCurrency"`
	Prices               []priceTier     `json:"prices"`
	CreatedAt            time.Time       `json:"createdAt"`
	ExpiresAt            time.Time       `json:"expiresAt"`
}

// toQuote converts the wire quote, checking it answers req.
func (r *quoteResult) toQuote(req quote.Request) (quote.Quote, error) {
	if r.Pair != req.Pair.String() {
		return quote.Quote{}, fmt.Errorf("%w: quote for %s, requested "+
			"%v", ErrProvider, r.Pair, req.Pair)
	}

	feeAsset, err := assetForCode(req.Pair, r.NetworkFeeCurrency)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: network fee: %w",
			ErrProvider, err)
	}

	prices := make([]quote.PriceTier, 0, len(r.Prices))
	for _, p := range r.Prices {
		prices = append(prices, quote.PriceTier{
			Volume: money.FromMajor(req.Pair.Source, p.Volume),
			Price:  p.Price,
		})
	}

	return quote.Quote{
		ID:                   r.ID,
		Pair:                 req.Pair,
		Direction:            req.Direction,
		SampleDepositAddress: r.SampleDepositAddress,
		NetworkFee:           money.FromMajor(feeAsset, r.NetworkFee),
		Prices:               prices,
		CreatedAt:            r.CreatedAt,
		ExpiresAt:            r.ExpiresAt,
	}, nil
}
