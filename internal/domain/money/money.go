// Package money parses and formats monetary amounts.
//
// Amounts travel over the wire as decimal strings and are held as
// shopspring decimals end to end. Parsing never coerces bad input to zero:
// a price that cannot be read would otherwise under-charge.
package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrMalformed is returned when an amount is not a finite decimal number.
var ErrMalformed = errors.New("malformed decimal amount")

// ErrNegative is returned by ParseAmount for values below zero.
var ErrNegative = errors.New("negative amount")

// Parse reads a signed decimal amount such as "12.50" or "-3".
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.Wrap(ErrMalformed, "empty string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrMalformed, "%q", s)
	}
	return d, nil
}

// ParseAmount is Parse restricted to non-negative values (prices, fees,
// deposits, balances).
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Wrapf(ErrNegative, "%q", s)
	}
	return d, nil
}

// Format renders d with exactly two fractional digits, rounding half away
// from zero.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Percent converts a percentage such as 10 into the factor 0.10. The shift is
// exact, unlike a division.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Shift(-2)
}

// Sum adds all values. Sum() is zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
