// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package exrates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/btcsuite/txengine/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	// defaultUserAgent is sent with every rate request.
	defaultUserAgent = "txengine-exrates/1.0"

	// maxResponseSize bounds the body of a rate response.
	maxResponseSize = 1 << 20
)

// ErrBadResponse is returned when the rate endpoint answers with anything
// but a well-formed rate table.
var ErrBadResponse = errors.New("bad exchange rate response")

// HTTPSource fetches a rate table from a JSON endpoint. The endpoint
// answers with prices keyed by source and then target code:
//
//	{"BTC": {"EUR": "50000.12", "USD": "54000"}, "ETH": {"EUR": "2500"}}
//
// Codes of known crypto assets resolve to those assets; any other code is
// taken as a fiat currency.
type HTTPSource struct {
	url    string
	client *http.Client
}

// A compile-time assertion to ensure HTTPSource is a Source.
var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source polling url. A nil client gets one with a
// ten second timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPSource{url: url, client: client}
}

// FetchRates fetches and decodes the rate table.
func (s *HTTPSource) FetchRates(ctx context.Context) ([]Rate, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, s.url, nil,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse,
			resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	var table map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	rates := make([]Rate, 0, len(table))
	for from, prices := range table {
		for to, price := range prices {
			rates = append(rates, Rate{
				Pair: money.NewPair(
					resolveAsset(from), resolveAsset(to),
				),
				Price: price,
			})
		}
	}

	// Map iteration order is random; keep logs and tests stable.
	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Pair.String() < rates[j].Pair.String()
	})

	return rates, nil
}

// resolveAsset maps a code onto a known crypto asset or a fiat currency.
func resolveAsset(code string) money.Asset {
	if asset, err := money.AssetByCode(code); err == nil {
		return asset
	}

	return money.Fiat(code)
}
