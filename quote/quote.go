// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoQuote is returned when no quote has been received yet.
	ErrNoQuote = errors.New("no quote available")

	// ErrNoPriceTiers is returned when a quote carries no prices.
	ErrNoPriceTiers = errors.New("quote has no price tiers")

	// ErrEngineStopped is returned when the quote engine is used after
	// Stop.
	ErrEngineStopped = errors.New("quote engine stopped")

	// ErrEngineAlreadyStarted is returned when Start is called twice.
	ErrEngineAlreadyStarted = errors.New("quote engine already started")
)

// Direction describes which side of a conversion holds the keys.
type Direction uint8

const (
	// DirectionFromUserKey moves funds from a non-custodial account into
	// the custodial ledger.
	DirectionFromUserKey Direction = iota

	// DirectionToUserKey moves funds from the custodial ledger out to a
	// non-custodial account.
	DirectionToUserKey

	// DirectionInternal converts between two custodial balances.
	DirectionInternal

	// DirectionOnChain converts between two non-custodial accounts.
	DirectionOnChain
)

// String returns the wire name of a direction.
func (d Direction) String() string {
	switch d {
	case DirectionFromUserKey:
		return "FROM_USERKEY"

	case DirectionToUserKey:
		return "TO_USERKEY"

	case DirectionInternal:
		return "INTERNAL"

	case DirectionOnChain:
		return "ON_CHAIN"

	default:
		return "UNKNOWN"
	}
}

// PriceTier is one point of a quote's price curve: orders of Volume are
// priced at Price units of the target asset per unit of the source asset.
type PriceTier struct {
	Volume money.Money
	Price  decimal.Decimal
}

// Quote is a time-bounded price, fee and address bundle for one conversion.
type Quote struct {
	// ID is the provider's id for the quote. Orders reference it.
	ID string

	// Pair is the conversion the quote prices.
	Pair money.Pair

	// Direction is the custody direction of the conversion.
	Direction Direction

	// SampleDepositAddress is an address of the custodial counterpart
	// that a non-custodial source can estimate fees against.
	SampleDepositAddress string

	// NetworkFee is the fee charged to settle the conversion.
	NetworkFee money.Money

	// Prices is the price curve, in ascending volume order.
	Prices []PriceTier

	// CreatedAt is when the provider issued the quote.
	CreatedAt time.Time

	// ExpiresAt is when the quote stops being honoured.
	ExpiresAt time.Time
}

// Lifetime returns how long the quote remains valid after now.
func (q Quote) Lifetime(now time.Time) time.Duration {
	return q.ExpiresAt.Sub(now)
}

// PriceFor returns the price for converting amount, interpolated linearly
// between the two surrounding tiers and clamped to the first and last tier.
func (q Quote) PriceFor(amount money.Money) (decimal.Decimal, error) {
	if len(q.Prices) == 0 {
		return decimal.Zero, fmt.Errorf("%w: quote %s", ErrNoPriceTiers,
			q.ID)
	}

	tiers := make([]PriceTier, len(q.Prices))
	copy(tiers, q.Prices)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Volume.ToMajor().LessThan(
			tiers[j].Volume.ToMajor(),
		)
	})

	for _, tier := range tiers {
		if tier.Volume.Asset() != amount.Asset() {
			return decimal.Zero, fmt.Errorf("%w: tier in %v, "+
				"amount in %v", money.ErrCurrencyMismatch,
				tier.Volume.Asset(), amount.Asset())
		}
	}

	volume := amount.ToMajor()
	first, last := tiers[0], tiers[len(tiers)-1]

	switch {
	case !volume.GreaterThan(first.Volume.ToMajor()):
		return first.Price, nil

	case !volume.LessThan(last.Volume.ToMajor()):
		return last.Price, nil
	}

	// Find the first tier above the volume. The clamps above guarantee
	// it is neither the first nor past the last.
	upper := sort.Search(len(tiers), func(i int) bool {
		return tiers[i].Volume.ToMajor().GreaterThan(volume)
	})
	lo, hi := tiers[upper-1], tiers[upper]

	loVol, hiVol := lo.Volume.ToMajor(), hi.Volume.ToMajor()
	span := hiVol.Sub(loVol)
	if span.IsZero() {
		return hi.Price, nil
	}

	weight := volume.Sub(loVol).Div(span)

	return lo.Price.Add(hi.Price.Sub(lo.Price).Mul(weight)), nil
}

// PricedQuote is a quote together with the price for the current amount.
type PricedQuote struct {
	// Price is in units of the target asset per unit of the source
	// asset.
	Price decimal.Decimal

	Quote Quote
}

// Request selects the quote stream to fetch from.
type Request struct {
	Direction Direction
	Pair      money.Pair
}

// Provider fetches a fresh quote.
type Provider interface {
	// FetchQuote returns the provider's current quote for the request.
	FetchQuote(ctx context.Context, req Request) (Quote, error)
}
