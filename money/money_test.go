package money_test

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/money"
)

func TestToCents_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want money.Cents
	}{
		{"0", 0},
		{"0.01", 1},
		{"0.005", 1},
		{"0.004", 0},
		{"3333.34", 333334},
		{"10000", 1000000},
		{"1.235", 124},
		{"-0.005", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, money.ToCents(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestToCentsFloat_GuardsRepresentationError(t *testing.T) {
	// 0.1 + 0.2 is 0.30000000000000004 in binary floating point.
	assert.Equal(t, money.Cents(30), money.ToCentsFloat(0.1+0.2))
	// 1.005 is stored as 1.00499999999999989...; shortest repr is 1.005.
	assert.Equal(t, money.Cents(101), money.ToCentsFloat(1.005))
	assert.Equal(t, money.Cents(0), money.ToCentsFloat(math.NaN()))
	assert.Equal(t, money.Cents(0), money.ToCentsFloat(math.Inf(1)))
}

func TestFromCents_RoundTrip(t *testing.T) {
	// GIVEN: random 2-decimal values
	// WHEN: converted to cents and back
	// THEN: the value is unchanged
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		units := rng.Int63n(10_000_000)
		frac := rng.Int63n(100)
		v := decimal.RequireFromString(fmt.Sprintf("%d.%02d", units, frac))

		got := money.FromCents(money.ToCents(v))
		require.True(t, got.Equal(v), "round trip of %s gave %s", v, got)
	}
}

func TestCents_Div_Floors(t *testing.T) {
	assert.Equal(t, money.Cents(100000), money.Cents(500000).Div(5))
	assert.Equal(t, money.Cents(33333), money.Cents(100000).Div(3))
	assert.Equal(t, money.Cents(-34), money.Cents(-100).Div(3))
	assert.Equal(t, money.Cents(0), money.Cents(100).Div(0))
}

func TestCents_String(t *testing.T) {
	assert.Equal(t, "1234.56", money.Cents(123456).String())
	assert.Equal(t, "-0.02", money.Cents(-2).String())
	assert.Equal(t, "0.00", money.Cents(0).String())
}

func TestBounded_SaturatesPastMaxAmount(t *testing.T) {
	assert.Equal(t, money.Cents(333334), money.Bounded(decimal.RequireFromString("3333.335")))
	assert.Equal(t, money.MaxAmount, money.Bounded(money.MaxAmount.Decimal()))
	assert.True(t, money.MaxAmount.InRange())

	// 2^31 × R$ 85.899.345,92 wraps an int64 product to zero
	huge := decimal.RequireFromString("85899345.92").Mul(decimal.NewFromInt(1 << 31))
	got := money.Bounded(huge)
	assert.Greater(t, got, money.MaxAmount)
	assert.False(t, got.InRange())
	assert.Less(t, money.Bounded(huge.Neg()), -money.MaxAmount)

	// Adding many saturated values stays positive
	var total money.Cents
	for range 1000 {
		total = total.Add(got)
	}
	assert.Positive(t, int64(total))
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   money.Cents
		want string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{99999, "R$ 999,99"},
		{100000, "R$ 1.000,00"},
		{1000000, "R$ 10.000,00"},
		{123456789, "R$ 1.234.567,89"},
		{-2, "-R$ 0,02"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, money.FormatBRL(tt.in))
		})
	}
}

func TestParseBRL(t *testing.T) {
	tests := []struct {
		in   string
		want money.Cents
	}{
		{"R$ 10.000,00", 1000000},
		{"R$ 3.333,34", 333334},
		{"1234,5", 123450},
		{"-R$ 0,02", -2},
		{"R$ -0,02", -2},
		{"42", 4200},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := money.ParseBRL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "R$", "abc", "R$ 1,2,3"} {
		_, err := money.ParseBRL(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestFormatParse_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		c := money.Cents(rng.Int63n(1_000_000_000) - 500_000_000)
		got, err := money.ParseBRL(money.FormatBRL(c))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}
