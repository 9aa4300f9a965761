package payment

import (
	"fmt"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/shopspring/decimal"
)

// FormatAmount renders minor units as the processor's decimal gross amount.
func FormatAmount(minor int64, currency string) string {
	exp := domain.CurrencyExponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}

// ParseAmount converts a processor gross amount ("50000.00") to minor units.
// Amounts with more precision than the currency allows are rejected.
func ParseAmount(gross, currency string) (int64, error) {
	d, err := decimal.NewFromString(gross)
	if err != nil {
		return 0, fmt.Errorf("invalid gross amount %q: %w", gross, err)
	}
	exp := domain.CurrencyExponent(currency)
	minor := d.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("gross amount %q has sub-minor-unit precision for %s", gross, currency)
	}
	return minor.IntPart(), nil
}
