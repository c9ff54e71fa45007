/*
Package money provides fixed-point currency arithmetic in integer cents.

PURPOSE:
  Every monetary sum, product and difference in the engine is computed on
  Cents (an int64 count of minor currency units). Decimal values only exist
  at the boundary: user input, persistence of unit values, and display.

KEY CONCEPTS:
  - Cents:       Integer minor units. Safe to add, subtract, multiply by a count.
  - ToCents:     decimal -> cents, rounded half-up to the nearest cent.
  - FromCents:   cents -> decimal, exact.
  - FormatBRL:   cents -> "R$ 10.000,00" (pt-BR grouping and decimal marks).

ROUNDING:
  Rounding happens in exactly one place (ToCents). Halves round away from
  zero, which is half-up for the non-negative values payment plans carry.

EXAMPLE:
  unit := money.ToCents(decimal.RequireFromString("3333.34")) // 333334
  total := unit.Mul(3)                                        // 1000002
  diff := money.Cents(1000000).Sub(total)                     // -2

SEE ALSO:
  - condition/condition.go: EffectiveTotalCents uses ToCents
  - ledger/snapshot.go: All aggregation in Cents
*/
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Cents is an amount of money in minor currency units.
type Cents int64

// PerUnit is the number of cents in one currency unit.
const PerUnit = 100

var hundred = decimal.NewFromInt(PerUnit)

// MaxAmount is the largest amount a condition total or reference total may
// carry: R$ 1.000.000.000.000,00.
const MaxAmount Cents = 100_000_000_000_000

// overLimit is what Bounded returns past MaxAmount. Sums of any realistic
// number of bounded values stay far from int64 overflow.
const overLimit = MaxAmount + 1

var maxAmountDecimal = decimal.NewFromInt(int64(MaxAmount))

// =============================================================================
// BOUNDARY CONVERSIONS
// =============================================================================

// ToCents converts a decimal currency value to cents, rounding half-up.
func ToCents(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Bounded converts d to cents like ToCents, saturating at one cent past
// MaxAmount in either direction. Use it wherever d comes from user input
// and could exceed int64.
func Bounded(d decimal.Decimal) Cents {
	c := d.Mul(hundred).Round(0)
	switch {
	case c.GreaterThan(maxAmountDecimal):
		return overLimit
	case c.LessThan(maxAmountDecimal.Neg()):
		return -overLimit
	}
	return Cents(c.IntPart())
}

// ToCentsFloat converts a float currency value to cents.
// NaN and infinities are treated as zero. The float goes through its
// shortest decimal representation first, so 0.1+0.2 style inputs land on
// the intended cent instead of one below it.
func ToCentsFloat(f float64) Cents {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return ToCents(decimal.NewFromFloat(f))
}

// FromCents converts cents back to a decimal currency value.
func FromCents(c Cents) decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func (c Cents) Add(o Cents) Cents { return c + o }
func (c Cents) Sub(o Cents) Cents { return c - o }
func (c Cents) Mul(n int) Cents { return c * Cents(n) }
func (c Cents) Neg() Cents { return -c }
func (c Cents) IsZero() bool { return c == 0 }
func (c Cents) IsNegative() bool { return c < 0 }
func (c Cents) IsPositive() bool { return c > 0 }

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// Div splits c into n equal parts, floored to the cent.
// Returns zero when n <= 0.
func (c Cents) Div(n int) Cents {
	if n <= 0 {
		return 0
	}
	q := c / Cents(n)
	if c%Cents(n) != 0 && c < 0 {
		q--
	}
	return q
}

// Decimal returns the decimal currency value.
func (c Cents) Decimal() decimal.Decimal {
	return FromCents(c)
}

// InRange reports whether |c| <= MaxAmount.
func (c Cents) InRange() bool {
	return c.Abs() <= MaxAmount
}

// String renders the value with two decimals, e.g. "1234.56".
func (c Cents) String() string {
	return FromCents(c).StringFixed(2)
}
