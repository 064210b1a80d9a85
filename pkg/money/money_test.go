package money

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestArithmetic checks that amounts of the same asset add and subtract and
// that mixing assets fails with ErrCurrencyMismatch.
func TestArithmetic(t *testing.T) {
	t.Parallel()

	a := FromMinor(BTC, 150)
	b := FromMinor(BTC, 50)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.True(t, sum.Equal(FromMinor(BTC, 200)))

	diff, err := b.Sub(a)
	require.NoError(t, err)
	require.True(t, diff.IsNegative())
	require.True(t, diff.ClampZero().IsZero())

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	_, err = a.Add(FromMinor(ETH, 1))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Cmp(Zero(Fiat("EUR")))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	// Amounts of different assets are never equal, even when zero.
	require.False(t, Zero(BTC).Equal(Zero(ETH)))
}

// TestMajorConversion checks the decimal <-> minor unit conversion for
// assets with different precisions.
func TestMajorConversion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		asset    Asset
		major    string
		minor    string
		rendered string
	}{
		{
			name:     "one bitcoin",
			asset:    BTC,
			major:    "1",
			minor:    "100000000",
			rendered: "1.00000000 BTC",
		},
		{
			name:     "ether wei precision",
			asset:    ETH,
			major:    "21",
			minor:    "21000000000000000000",
			rendered: "21.000000000000000000 ETH",
		},
		{
			name:     "truncated fiat",
			asset:    Fiat("eur"),
			major:    "10.999",
			minor:    "1099",
			rendered: "10.99 EUR",
		},
		{
			name:     "usdt six decimals",
			asset:    USDT,
			major:    "0.5",
			minor:    "500000",
			rendered: "0.500000 USDT",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			major := decimal.RequireFromString(tc.major)
			m := FromMajor(tc.asset, major)

			expected, ok := new(big.Int).SetString(tc.minor, 10)
			require.True(t, ok)
			require.Zero(t, expected.Cmp(m.Minor()))
			require.Equal(t, tc.rendered, m.String())
		})
	}
}

// TestConvert checks conversions through an exchange rate in both
// directions.
func TestConvert(t *testing.T) {
	t.Parallel()

	eur := Fiat("EUR")

	// 100 EUR at 2 EUR per BTC is 50 BTC.
	limit := FromMajor(eur, decimal.NewFromInt(100))
	converted, err := limit.ConvertInverse(decimal.NewFromInt(2), BTC)
	require.NoError(t, err)
	require.True(t, converted.Equal(FromMajor(BTC, decimal.NewFromInt(50))))

	// 0.5 BTC at 30000 EUR per BTC is 15000 EUR.
	half := FromMajor(BTC, decimal.RequireFromString("0.5"))
	fiat := half.Convert(decimal.NewFromInt(30000), eur)
	require.True(t, fiat.Equal(FromMajor(eur, decimal.NewFromInt(15000))))

	_, err = limit.ConvertInverse(decimal.Zero, BTC)
	require.ErrorIs(t, err, ErrDivideByZero)
}

// TestConvertInverseCeil checks that the inverse conversion rounds up only
// when the quotient is inexact.
func TestConvertInverseCeil(t *testing.T) {
	t.Parallel()

	eur := Fiat("EUR")

	tests := []struct {
		name   string
		amount Money
		rate   string
		want   Money
	}{
		{
			name:   "exact",
			amount: FromMinor(eur, 1_000),
			rate:   "50000",
			want:   FromMinor(BTC, 20_000),
		},
		{
			// 16_666.67 sat.
			name:   "inexact",
			amount: FromMinor(eur, 500),
			rate:   "30000",
			want:   FromMinor(BTC, 16_667),
		},
		{
			name:   "negative",
			amount: FromMinor(eur, -500),
			rate:   "30000",
			want:   FromMinor(BTC, -16_666),
		},
		{
			name:   "zero",
			amount: Zero(eur),
			rate:   "30000",
			want:   Zero(BTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rate := decimal.RequireFromString(tc.rate)
			got, err := tc.amount.ConvertInverseCeil(rate, BTC)
			require.NoError(t, err)
			require.True(t, got.Equal(tc.want), "got %v", got)

			floor, err := tc.amount.ConvertInverse(rate, BTC)
			require.NoError(t, err)
			cmp, err := got.Cmp(floor)
			require.NoError(t, err)
			require.GreaterOrEqual(t, cmp, 0)
		})
	}

	_, err := FromMinor(eur, 1).ConvertInverseCeil(decimal.Zero, BTC)
	require.ErrorIs(t, err, ErrDivideByZero)
}

// TestAssetRegistry checks lookups and the fee asset of tokens.
func TestAssetRegistry(t *testing.T) {
	t.Parallel()

	pax, err := AssetByCode("pax")
	require.NoError(t, err)
	require.Equal(t, PAX, pax)
	require.True(t, pax.IsERC20())
	require.Equal(t, ETH, pax.FeeAsset())
	require.Equal(t, BTC, BTC.FeeAsset())

	_, err = AssetByCode("DOGE")
	require.ErrorIs(t, err, ErrUnknownAsset)

	require.True(t, Fiat("gbp").IsFiat())
	require.Equal(t, "GBP", Fiat("gbp").Code())
	require.Equal(t, "BTC-EUR", NewPair(BTC, Fiat("EUR")).String())

	token := NewERC20("abc", 4, "0x01")
	require.Equal(t, ETH, token.FeeAsset())
}

// TestZeroValue checks that the zero Money behaves as a zero amount.
func TestZeroValue(t *testing.T) {
	t.Parallel()

	var m Money
	require.True(t, m.IsZero())
	require.Zero(t, m.Minor().Sign())
	require.True(t, m.Asset().IsZero())
}
