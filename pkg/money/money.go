// Package money holds the fixed-precision helpers shared by the credit
// ledger. Every amount is a two-decimal currency value.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places currency amounts carry.
const Places = 2

// IntegerDigits is the widest integer part a numeric(12,2) column holds.
const IntegerDigits = 10

// Zero is a convenience zero amount.
var Zero = decimal.Zero

// Limit is the largest magnitude an amount may carry.
var Limit = decimal.New(1, IntegerDigits).Sub(decimal.New(1, -Places))

// Parse reads a decimal string, rejecting values with more than two decimal
// places, more than ten integer digits or anything that is not a plain
// number.
func Parse(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, fmt.Errorf("amount %q must not use exponent notation", value)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a decimal", value)
	}
	if amount.Exponent() < -Places && !amount.Equal(amount.Round(Places)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", value, Places)
	}
	amount = amount.Round(Places)
	if !WithinLimit(amount) {
		return decimal.Zero, fmt.Errorf("amount %q exceeds %s", value, String(Limit))
	}
	return amount, nil
}

// WithinLimit reports whether amount fits a numeric(12,2) column.
func WithinLimit(amount decimal.Decimal) bool {
	return !amount.Abs().GreaterThan(Limit)
}

// ParsePositive is Parse plus a strictly-positive check.
func ParsePositive(value string) (decimal.Decimal, error) {
	amount, err := Parse(value)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be greater than zero")
	}
	return amount, nil
}

// Round normalises an amount read back from the store.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Places)
}

// String renders an amount with exactly two decimals.
func String(amount decimal.Decimal) string {
	return amount.StringFixed(Places)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
