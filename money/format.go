package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BRL DISPLAY FORMAT
// =============================================================================

const brlSymbol = "R$"

// FormatBRL renders cents the way pt-BR currency formatters do:
// "R$ 10.000,00", "-R$ 0,02".
func FormatBRL(c Cents) string {
	sign := ""
	if c < 0 {
		sign = "-"
	}
	abs := c.Abs()
	units := int64(abs / PerUnit)
	frac := int64(abs % PerUnit)
	return fmt.Sprintf("%s%s %s,%02d", sign, brlSymbol, groupThousands(units), frac)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ParseBRL parses a pt-BR formatted amount ("R$ 1.234,56", "1234,56",
// "-R$ 0,02") into cents. The symbol is optional; "." groups thousands and
// "," separates decimals. More than two decimals are rounded half-up.
func ParseBRL(s string) (Cents, error) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "\u00a0", " ")

	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = strings.TrimSpace(raw[1:])
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, brlSymbol))
	if strings.HasPrefix(raw, "-") {
		negative = !negative
		raw = strings.TrimSpace(raw[1:])
	}
	if raw == "" {
		return 0, fmt.Errorf("parse BRL %q: empty amount", s)
	}

	raw = strings.ReplaceAll(raw, ".", "")
	raw = strings.Replace(raw, ",", ".", 1)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse BRL %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse BRL %q: misplaced sign", s)
	}

	c := Bounded(d)
	if negative {
		c = -c
	}
	return c, nil
}
