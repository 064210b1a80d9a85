// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package exrates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/txengine"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shopspring/decimal"
)

const (
	// DefaultInterval is the interval between two polls.
	DefaultInterval = time.Minute

	// DefaultFetchTimeout bounds a single poll.
	DefaultFetchTimeout = 10 * time.Second

	// inversePrecision is the number of decimal places kept when a rate
	// is derived from its inverse.
	inversePrecision = 18
)

var (
	// ErrRateUnavailable is returned when no fresh rate is cached for a
	// pair.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrPollerStopped is returned when Start is called after Stop.
	ErrPollerStopped = errors.New("rate poller stopped")

	// ErrPollerAlreadyStarted is returned when Start is called twice.
	ErrPollerAlreadyStarted = errors.New("rate poller already started")
)

// Rate is the price of one unit of Pair.Source in units of Pair.Target.
type Rate struct {
	Pair  money.Pair
	Price decimal.Decimal
}

// Source fetches a full set of current rates.
type Source interface {
	FetchRates(ctx context.Context) ([]Rate, error)
}

// Config holds the dependencies of a Poller.
type Config struct {
	// Source supplies the rates.
	Source Source

	// Interval is the polling interval. It defaults to DefaultInterval.
	Interval time.Duration

	// FetchTimeout bounds a single poll. It defaults to
	// DefaultFetchTimeout.
	FetchTimeout time.Duration

	// MaxAge is how long a poll result stays usable. Zero keeps rates
	// forever.
	MaxAge time.Duration

	// NewTicker creates the polling ticker. It defaults to ticker.New.
	NewTicker func(time.Duration) ticker.Ticker

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time
}

// withDefaults returns a copy of the config with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}

	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}

	if c.NewTicker == nil {
		c.NewTicker = func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		}
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	return c
}

// Poller caches the rates of a Source and refreshes them on a fixed
// interval. It implements txengine.ExchangeRates.
//
// A failed poll keeps the previous rates until they exceed MaxAge.
type Poller struct {
	cfg Config

	started atomic.Bool
	stopped atomic.Bool

	lifetimeCtx context.Context
	cancel      context.CancelFunc

	wg sync.WaitGroup

	// mu guards the fields below.
	mu        sync.RWMutex
	rates     map[money.Pair]decimal.Decimal
	updatedAt time.Time
}

// A compile-time assertion to ensure Poller can price engine limits.
var _ txengine.ExchangeRates = (*Poller)(nil)

// New creates a poller that is not started yet.
func New(cfg Config) *Poller {
	lifetimeCtx, cancel := context.WithCancel(context.Background())

	return &Poller{
		cfg:         cfg.withDefaults(),
		lifetimeCtx: lifetimeCtx,
		cancel:      cancel,
		rates:       make(map[money.Pair]decimal.Decimal),
	}
}

// Start polls the source once, then keeps polling in the background. A
// failed first poll is logged and retried on the next tick.
func (p *Poller) Start() error {
	if p.stopped.Load() {
		return ErrPollerStopped
	}

	if !p.started.CompareAndSwap(false, true) {
		return ErrPollerAlreadyStarted
	}

	if err := p.refresh(); err != nil {
		log.Warnf("Initial exchange rate poll failed: %v", err)
	}

	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

// Stop ends polling and waits for the poll goroutine to exit. It is safe to
// call more than once and before Start.
func (p *Poller) Stop() {
	if p.stopped.Swap(true) {
		return
	}

	p.cancel()
	p.wg.Wait()

	log.Debugf("Exchange rate poller stopped")
}

// pollLoop refreshes the rates on every tick until the poller is stopped.
func (p *Poller) pollLoop() {
	defer p.wg.Done()

	t := p.cfg.NewTicker(p.cfg.Interval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			if err := p.refresh(); err != nil &&
				p.lifetimeCtx.Err() == nil {

				log.Warnf("Exchange rate poll failed: %v", err)
			}

		case <-p.lifetimeCtx.Done():
			return
		}
	}
}

// refresh polls the source and replaces the cached rates.
func (p *Poller) refresh() error {
	ctx, cancel := context.WithTimeout(p.lifetimeCtx, p.cfg.FetchTimeout)
	defer cancel()

	rates, err := p.cfg.Source.FetchRates(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[money.Pair]decimal.Decimal, len(rates))
	for _, r := range rates {
		if !r.Price.IsPositive() {
			log.Debugf("Skipping %v rate %v", r.Pair, r.Price)
			continue
		}

		fresh[r.Pair] = r.Price
	}

	p.mu.Lock()
	p.rates = fresh
	p.updatedAt = p.cfg.Now()
	p.mu.Unlock()

	log.Debugf("Cached %d exchange rates", len(fresh))

	return nil
}

// LastPrice returns the cached price of one unit of from in units of to. A
// pair that is only cached the other way round is inverted.
func (p *Poller) LastPrice(from, to money.Asset) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.cfg.MaxAge > 0 && !p.updatedAt.IsZero() {
		age := p.cfg.Now().Sub(p.updatedAt)
		if age > p.cfg.MaxAge {
			return decimal.Zero, fmt.Errorf("%w: %v-%v rates are "+
				"%v old", ErrRateUnavailable, from, to, age)
		}
	}

	if price, ok := p.rates[money.NewPair(from, to)]; ok {
		return price, nil
	}

	if inverse, ok := p.rates[money.NewPair(to, from)]; ok {
		one := decimal.NewFromInt(1)

		return one.DivRound(inverse, inversePrecision), nil
	}

	return decimal.Zero, fmt.Errorf("%w: %v-%v", ErrRateUnavailable,
		from, to)
}
