// Package money parses and formats BRL amounts on top of shopspring/decimal.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid money amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Places is the number of fractional digits kept for BRL.
const Places = 2

// MaxIntegerDigits bounds the integer part of a parsed amount.
const MaxIntegerDigits = 15

// Parse reads a user-entered amount. Both "1.234,56" (pt-BR) and "1234.56"
// are accepted: when both separators appear the last one is the decimal
// separator, a lone comma is decimal, and dots followed by groups of exactly
// three digits are grouping ("1.234" is 1234). Amounts with more than two
// fractional digits, exponents or more than MaxIntegerDigits integer digits
// are rejected.
func Parse(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1, lastDot >= 0 && isGrouped(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	intPart, frac, _ := strings.Cut(strings.TrimLeft(s, "+-"), ".")
	if len(frac) > Places || len(strings.TrimLeft(intPart, "0")) > MaxIntegerDigits {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// isGrouped reports whether a single dot separates a non-zero integer part
// from exactly three digits, as in "1.234".
func isGrouped(s string) bool {
	intPart, frac, _ := strings.Cut(strings.TrimLeft(s, "+-"), ".")
	return len(frac) == 3 && strings.TrimLeft(intPart, "0") != ""
}

// Format renders an amount as "R$ 1.234,56".
func Format(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(Places)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), frac)
}

// Cents converts an amount to integer cents, rounding half away from zero.
func Cents(d decimal.Decimal) int64 {
	return d.Round(Places).Shift(Places).IntPart()
}

// FromCents builds an amount from integer cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}
