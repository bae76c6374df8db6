package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	DecimalHundred = decimal.NewFromInt(100)
	// MoneyTolerance is the smallest difference treated as real money (one cent).
	MoneyTolerance = decimal.New(1, -2)
)

// ParseMoney parses a legacy amount column. Currency symbols, thousands
// separators and surrounding spaces are ignored; "(12.50)" is negative.
// Blank and null-like values return ok=false with no error.
func ParseMoney(raw string) (amount decimal.Decimal, ok bool, err error) {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "null", "none", "nan", "n/a", "-":
		return decimal.Zero, false, nil
	}
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	}
	replacer := strings.NewReplacer("$", "", "฿", "", ",", "", " ", "", "THB", "", "thb", "")
	v = replacer.Replace(v)
	d, perr := decimal.NewFromString(v)
	if perr != nil {
		return decimal.Zero, false, fmt.Errorf("invalid amount %q: %w", raw, perr)
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

// RoundMoney rounds to cents. Only used at persistence/reporting boundaries.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func IntPtr(v int) *int {
	return &v
}
