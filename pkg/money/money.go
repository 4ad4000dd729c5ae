// Package money converts between integer cents and display amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FromCents renders cents as a two-decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// String formats cents as "12.34".
func String(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// Format formats cents with an upper-cased currency code, e.g. "USD 12.34".
func Format(cents int64, currency string) string {
	return fmt.Sprintf("%s %s", strings.ToUpper(currency), String(cents))
}

// ParseCents converts a decimal string such as "45.00" into cents. More than
// two fractional digits is rejected rather than rounded.
func ParseCents(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	return scaled.IntPart(), nil
}
