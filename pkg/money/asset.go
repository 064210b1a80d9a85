// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package money provides exact-precision amounts tagged with the asset or
// currency they are denominated in.
package money

import (
	"fmt"
	"strings"
)

// Kind tells crypto assets and fiat currencies apart.
type Kind uint8

const (
	// KindCrypto is a crypto asset settled on a chain or a custodial
	// ledger.
	KindCrypto Kind = iota

	// KindFiat is a fiat currency.
	KindFiat
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCrypto:
		return "crypto"

	case KindFiat:
		return "fiat"

	default:
		return "unknown kind"
	}
}

// fiatDecimals is the number of minor-unit digits used for every fiat
// currency.
const fiatDecimals = 2

// Asset identifies what a Money value is denominated in. Asset is a
// comparable value type so it can be used with == and as a map key.
type Asset struct {
	code     string
	decimals uint8
	kind     Kind

	// chain is the code of the native asset of the chain a token lives
	// on. It is empty for native assets and fiat.
	chain string

	// contract is the token contract address for ERC20 assets.
	contract string
}

var (
	// BTC is bitcoin.
	BTC = Asset{code: "BTC", decimals: 8, kind: KindCrypto}

	// BCH is bitcoin cash.
	BCH = Asset{code: "BCH", decimals: 8, kind: KindCrypto}

	// ETH is ether, the fee asset for every ERC20 token.
	ETH = Asset{code: "ETH", decimals: 18, kind: KindCrypto}

	// XLM is stellar lumens.
	XLM = Asset{code: "XLM", decimals: 7, kind: KindCrypto}

	// ALGO is algorand.
	ALGO = Asset{code: "ALGO", decimals: 6, kind: KindCrypto}

	// PAX is the Paxos standard ERC20 token.
	PAX = Asset{
		code: "PAX", decimals: 18, kind: KindCrypto, chain: "ETH",
		contract: "0x8E870D67F660D95d5be530380D0eC0bd388289E1",
	}

	// USDT is the tether ERC20 token.
	USDT = Asset{
		code: "USDT", decimals: 6, kind: KindCrypto, chain: "ETH",
		contract: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	}

	// DGLD is the digital gold ERC20 token.
	DGLD = Asset{
		code: "DGLD", decimals: 8, kind: KindCrypto, chain: "ETH",
		contract: "0x123151402076fc819B7564510989e475c9cD93CA",
	}
)

// cryptoAssets holds every crypto asset known to the registry.
var cryptoAssets = map[string]Asset{
	BTC.code:  BTC,
	BCH.code:  BCH,
	ETH.code:  ETH,
	XLM.code:  XLM,
	ALGO.code: ALGO,
	PAX.code:  PAX,
	USDT.code: USDT,
	DGLD.code: DGLD,
}

// Fiat returns the fiat currency with the given ISO 4217 code.
func Fiat(code string) Asset {
	return Asset{
		code:     strings.ToUpper(code),
		decimals: fiatDecimals,
		kind:     KindFiat,
	}
}

// NewERC20 returns a token asset living on the ETH chain. It is used for
// tokens that are not part of the built-in registry.
func NewERC20(code string, decimals uint8, contract string) Asset {
	return Asset{
		code:     strings.ToUpper(code),
		decimals: decimals,
		kind:     KindCrypto,
		chain:    ETH.code,
		contract: contract,
	}
}

// AssetByCode looks up a crypto asset by its ticker.
func AssetByCode(code string) (Asset, error) {
	asset, ok := cryptoAssets[strings.ToUpper(code)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, code)
	}

	return asset, nil
}

// Code returns the ticker or currency code.
func (a Asset) Code() string {
	return a.code
}

// Decimals returns the number of minor-unit digits.
func (a Asset) Decimals() uint8 {
	return a.decimals
}

// Kind returns whether the asset is crypto or fiat.
func (a Asset) Kind() Kind {
	return a.kind
}

// IsFiat returns true for fiat currencies.
func (a Asset) IsFiat() bool {
	return a.kind == KindFiat
}

// IsERC20 returns true for tokens living on the ETH chain.
func (a Asset) IsERC20() bool {
	return a.chain == ETH.code && a.contract != ""
}

// Contract returns the token contract address. It is empty for native
// assets.
func (a Asset) Contract() string {
	return a.contract
}

// FeeAsset returns the asset network fees are paid in when moving this
// asset on-chain.
func (a Asset) FeeAsset() Asset {
	if a.IsERC20() {
		return ETH
	}

	return a
}

// IsZero returns true for the zero Asset, which denotes "no asset".
func (a Asset) IsZero() bool {
	return a == Asset{}
}

// String returns the asset code.
func (a Asset) String() string {
	if a.IsZero() {
		return "<none>"
	}

	return a.code
}

// Pair is an ordered conversion pair.
type Pair struct {
	Source Asset
	Target Asset
}

// NewPair creates a conversion pair.
func NewPair(source, target Asset) Pair {
	return Pair{Source: source, Target: target}
}

// String returns the pair in SOURCE-TARGET form.
func (p Pair) String() string {
	return p.Source.String() + "-" + p.Target.String()
}
