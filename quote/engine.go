// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultMinRefresh is the shortest interval between two fetches,
	// used when a quote arrives already expired or about to.
	DefaultMinRefresh = time.Second

	// DefaultRetryInterval is the interval before retrying a failed
	// fetch.
	DefaultRetryInterval = 5 * time.Second

	// DefaultFetchTimeout bounds a single provider call.
	DefaultFetchTimeout = 30 * time.Second
)

// Config holds the dependencies of a quote engine.
type Config struct {
	// Provider supplies the quotes.
	Provider Provider

	// NewTicker creates the ticker that fires the next refresh. It
	// defaults to ticker.New.
	NewTicker func(time.Duration) ticker.Ticker

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time

	// MinRefresh, RetryInterval and FetchTimeout default to the
	// package constants of the same name.
	MinRefresh    time.Duration
	RetryInterval time.Duration
	FetchTimeout  time.Duration
}

// withDefaults returns a copy of the config with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.NewTicker == nil {
		c.NewTicker = func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		}
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	if c.MinRefresh == 0 {
		c.MinRefresh = DefaultMinRefresh
	}

	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}

	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}

	return c
}

// Engine keeps one conversion priced. It owns a single goroutine that
// fetches a quote on Start and again every time the current quote expires.
// Amount updates re-price the latest quote against its price tiers.
//
// Engine is safe for concurrent use. It cannot be restarted after Stop.
type Engine struct {
	cfg Config

	started atomic.Bool
	stopped atomic.Bool

	// lifetimeCtx is cancelled by Stop and bounds every fetch.
	lifetimeCtx context.Context
	cancel      context.CancelFunc

	wg sync.WaitGroup

	// ready is closed once the first fetch has completed, successfully
	// or not.
	ready     chan struct{}
	readyOnce sync.Once

	// mu guards the fields below.
	mu      sync.RWMutex
	req     Request
	latest  fn.Option[PricedQuote]
	amount  fn.Option[money.Money]
	lastErr error
}

// NewEngine creates an engine that is not started yet.
func NewEngine(cfg Config) *Engine {
	lifetimeCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:         cfg.withDefaults(),
		lifetimeCtx: lifetimeCtx,
		cancel:      cancel,
		ready:       make(chan struct{}),
	}
}

// Start opens the quote stream for the given direction and pair and returns
// immediately. The first quote is fetched in the background; PricedQuote
// waits for it.
func (e *Engine) Start(direction Direction, pair money.Pair) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}

	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineAlreadyStarted
	}

	req := Request{Direction: direction, Pair: pair}

	e.mu.Lock()
	e.req = req
	e.mu.Unlock()

	log.Debugf("Starting quote stream %v %v", direction, pair)

	e.wg.Add(1)
	go e.mainLoop(req)

	return nil
}

// Stop cancels the quote stream and waits for the goroutine to exit. It is
// safe to call more than once and before Start.
func (e *Engine) Stop() {
	if e.stopped.Swap(true) {
		return
	}

	e.cancel()
	e.wg.Wait()

	e.mu.RLock()
	log.Debugf("Quote stream %v stopped", e.req.Pair)
	e.mu.RUnlock()
}

// UpdateAmount sets the amount the quote is priced for and re-prices the
// latest quote.
func (e *Engine) UpdateAmount(amount money.Money) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() && amount.Asset() != e.req.Pair.Source {
		return fmt.Errorf("%w: amount in %v, pair %v",
			money.ErrCurrencyMismatch, amount.Asset(), e.req.Pair)
	}

	e.amount = fn.Some(amount)

	current, err := e.latest.UnwrapOrErr(ErrNoQuote)
	if err != nil {
		// Nothing to re-price yet; the first quote picks the amount
		// up.
		return nil
	}

	priced, err := e.price(current.Quote)
	if err != nil {
		return err
	}

	e.latest = fn.Some(priced)

	return nil
}

// LatestQuote returns the most recent priced quote without waiting.
func (e *Engine) LatestQuote() (PricedQuote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.latest.UnwrapOrErr(ErrNoQuote)
}

// PricedQuote waits for the first fetch to complete and returns the most
// recent priced quote. If no quote was ever received, the last fetch error
// is returned.
func (e *Engine) PricedQuote(ctx context.Context) (PricedQuote, error) {
	if !e.started.Load() {
		return PricedQuote{}, ErrNoQuote
	}

	select {
	case <-e.ready:

	case <-ctx.Done():
		return PricedQuote{}, ctx.Err()

	case <-e.lifetimeCtx.Done():
		return PricedQuote{}, ErrEngineStopped
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.latest.IsNone() && e.lastErr != nil {
		return PricedQuote{}, e.lastErr
	}

	return e.latest.UnwrapOrErr(ErrNoQuote)
}

// mainLoop fetches the first quote, then refreshes it every time it
// expires until the engine is stopped.
func (e *Engine) mainLoop(req Request) {
	defer e.wg.Done()

	next := e.cfg.NewTicker(e.refresh(req))
	next.Resume()

	for {
		select {
		case <-next.Ticks():
			next.Stop()

			next = e.cfg.NewTicker(e.refresh(req))
			next.Resume()

		case <-e.lifetimeCtx.Done():
			next.Stop()

			return
		}
	}
}

// refresh fetches a quote and returns the interval until the next fetch. A
// failed fetch keeps the previous quote.
func (e *Engine) refresh(req Request) time.Duration {
	defer e.readyOnce.Do(func() { close(e.ready) })

	ctx, cancel := context.WithTimeout(e.lifetimeCtx, e.cfg.FetchTimeout)
	defer cancel()

	q, err := e.cfg.Provider.FetchQuote(ctx, req)
	if err == nil && q.Pair != req.Pair {
		err = fmt.Errorf("%w: quote for %v, requested %v",
			money.ErrCurrencyMismatch, q.Pair, req.Pair)
	}
	if err != nil {
		if e.lifetimeCtx.Err() == nil {
			log.Warnf("Unable to refresh quote for %v: %v",
				req.Pair, err)
		}

		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()

		return e.cfg.RetryInterval
	}

	log.Tracef("Received quote: %v", spewQuote(q))

	e.mu.Lock()
	priced, err := e.price(q)
	if err != nil {
		log.Warnf("Discarding quote %s: %v", q.ID, err)
		e.lastErr = err
	} else {
		e.latest = fn.Some(priced)
		e.lastErr = nil
	}
	e.mu.Unlock()

	if err != nil {
		return e.cfg.RetryInterval
	}

	lifetime := q.Lifetime(e.cfg.Now())
	if lifetime < e.cfg.MinRefresh {
		lifetime = e.cfg.MinRefresh
	}

	return lifetime
}

// price prices q for the current amount. The caller must hold mu.
func (e *Engine) price(q Quote) (PricedQuote, error) {
	amount := e.amount.UnwrapOr(money.Zero(q.Pair.Source))

	p, err := q.PriceFor(amount)
	if err != nil {
		return PricedQuote{}, err
	}

	return PricedQuote{Price: p, Quote: q}, nil
}
