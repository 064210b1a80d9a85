// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wsquote implements a quote provider speaking JSON requests and
// responses over a single websocket connection.
package wsquote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/quote"
	"github.com/btcsuite/txengine/txengine"
	"github.com/gorilla/websocket"
)

const (
	// DefaultMaxRetries is the number of reconnects tried for one
	// request.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the backoff before the first reconnect.
	DefaultBaseDelay = 250 * time.Millisecond

	// DefaultMaxDelay caps the reconnect backoff.
	DefaultMaxDelay = 10 * time.Second

	// DefaultRequestTimeout bounds one request when the context has no
	// deadline.
	DefaultRequestTimeout = 15 * time.Second

	// handshakeTimeout bounds the websocket handshake.
	handshakeTimeout = 10 * time.Second
)

var (
	// ErrProvider is returned when the provider answers a request with
	// an error.
	ErrProvider = errors.New("quote provider error")

	// ErrClosed is returned when the provider is used after Close.
	ErrClosed = errors.New("quote provider closed")
)

// errCodePendingOrders is the error code the provider uses when the user
// has too many open orders.
const errCodePendingOrders = "PENDING_ORDERS_LIMIT_REACHED"

// Config configures a websocket provider.
type Config struct {
	// URL is the websocket endpoint, such as wss://quotes.example/ws.
	URL string

	// Header is sent with the handshake, typically carrying auth.
	Header http.Header

	// MaxRetries, BaseDelay, MaxDelay and RequestTimeout default to the
	// package constants of the same name.
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}

// Provider fetches quotes over a websocket. Requests are serialised over
// one lazily dialled connection that is re-dialled with exponential backoff
// after an I/O error.
type Provider struct {
	cfg    Config
	dialer websocket.Dialer

	// mu serialises requests and guards the fields below.
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	closed bool
}

// New creates a provider. No connection is made until the first request.
func New(cfg Config) *Provider {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Provider{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// A compile-time assertion to ensure Provider implements quote.Provider.
var _ quote.Provider = (*Provider)(nil)

// FetchQuote implements quote.Provider.
func (p *Provider) FetchQuote(ctx context.Context,
	req quote.Request) (quote.Quote, error) {

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return quote.Quote{}, ErrClosed
	}

	var lastErr error
	for retry := 0; retry <= p.cfg.MaxRetries; retry++ {
		if retry > 0 {
			delay := backoff(
				retry-1, p.cfg.BaseDelay, p.cfg.MaxDelay,
			)
			log.Debugf("Reconnecting to %s in %v (retry %d): %v",
				p.cfg.URL, delay, retry, lastErr)

			select {
			case <-time.After(delay):

			case <-ctx.Done():
				return quote.Quote{}, fmt.Errorf("%w (last "+
					"error: %v)", ctx.Err(), lastErr)
			}
		}

		resp, err := p.roundTrip(ctx, req)
		if err == nil {
			return resp.toQuote(req)
		}

		// Errors reported by the provider are final; only transport
		// errors are retried.
		if errors.Is(err, ErrProvider) ||
			errors.Is(err, txengine.ErrPendingOrdersLimitReached) {

			return quote.Quote{}, err
		}

		p.closeConn()
		lastErr = err

		if ctx.Err() != nil {
			return quote.Quote{}, err
		}
	}

	return quote.Quote{}, fmt.Errorf("quote request failed after %d "+
		"retries: %w", p.cfg.MaxRetries, lastErr)
}

// Close closes the connection. Later requests fail with ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return p.closeConn()
}

// roundTrip sends one request and reads until its response arrives. The
// caller must hold mu.
func (p *Provider) roundTrip(ctx context.Context,
	req quote.Request) (*quoteResult, error) {

	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	p.nextID++
	id := p.nextID

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	msg := request{
		ID:     id,
		Method: methodQuote,
		Params: requestParams{
			Direction: req.Direction.String(),
			Pair:      req.Pair.String(),
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		// Responses to requests abandoned on a previous timeout may
		// still be in flight.
		if resp.ID != id {
			log.Debugf("Skipping stale response %d, want %d",
				resp.ID, id)

			continue
		}

		if resp.Error != nil {
			return nil, resp.Error.asError()
		}

		if resp.Result == nil {
			return nil, fmt.Errorf("%w: empty response to request "+
				"%d", ErrProvider, id)
		}

		return resp.Result, nil
	}
}

// connect returns the open connection, dialling a new one if needed. The
// caller must hold mu.
func (p *Provider) connect(ctx context.Context) (*websocket.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}

	conn, _, err := p.dialer.DialContext(ctx, p.cfg.URL, p.cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.cfg.URL, err)
	}

	log.Infof("Connected to quote provider %s", p.cfg.URL)
	p.conn = conn

	return conn, nil
}

// closeConn closes and forgets the connection. The caller must hold mu.
func (p *Provider) closeConn() error {
	if p.conn == nil {
		return nil
	}

	err := p.conn.Close()
	p.conn = nil

	return err
}

// backoff returns base * 2^retry, capped at maxDelay.
func backoff(retry int, base, maxDelay time.Duration) time.Duration {
	if retry < 0 {
		return base
	}

	// 2^30 times any sensible base is already past the cap.
	if retry > 30 {
		return maxDelay
	}

	delay := base * time.Duration(1<<retry)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}

	return delay
}

// assetForCode resolves a currency code of a quote against its pair.
func assetForCode(pair money.Pair, code string) (money.Asset, error) {
	switch code {
	case pair.Source.Code():
		return pair.Source, nil

	case pair.Target.Code():
		return pair.Target, nil

	default:
		return money.AssetByCode(code)
	}
}
