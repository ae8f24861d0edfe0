// Package money holds the decimal amount type used at the edges of the
// system and its conversion to the integer minor units sent to the gateway.
package money

import (
	"fmt"
	"math"
	"strings"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	maxMinor    = decimal.NewFromInt(math.MaxInt64)
	minorDigits = int32(2)
)

// Money is a non-negative decimal amount in an ISO-4217 currency.
// The zero value has no currency and is rejected by request validation.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New creates a Money value. Negative amounts fail with ErrInvalidAmount.
func New(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s is negative", domainErrors.ErrInvalidAmount, amount.String())
	}
	cur := normalizeCurrency(currency)
	if len(cur) != 3 {
		return Money{}, domainErrors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return Money{amount: amount, currency: cur}, nil
}

// Parse creates a Money value from a decimal string such as "49.99".
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: parse %q: %v", domainErrors.ErrInvalidAmount, amount, err)
	}
	return New(d, currency)
}

// FromFloat creates a Money value from a float, rejecting NaN and infinities.
func FromFloat(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, fmt.Errorf("%w: %v is not finite", domainErrors.ErrInvalidAmount, amount)
	}
	return New(decimal.NewFromFloat(amount), currency)
}

// ToMinorUnits converts m to integer minor units, rounding half away from zero.
func ToMinorUnits(m Money) (int64, error) {
	if m.amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", domainErrors.ErrInvalidAmount, m.amount.String())
	}
	scaled := m.amount.Mul(hundred).Round(0)
	if scaled.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s overflows minor units", domainErrors.ErrInvalidAmount, m.amount.String())
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits. It is meant for display and
// logging only.
func FromMinorUnits(units int64, currency string) Money {
	return Money{amount: decimal.New(units, -minorDigits), currency: normalizeCurrency(currency)}
}

func (m Money) Amount() decimal.Decimal { return m.amount }

func (m Money) Currency() string { return m.currency }

func (m Money) IsZero() bool { return m.amount.IsZero() }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// IsSet reports whether m carries a currency, i.e. was constructed.
func (m Money) IsSet() bool { return m.currency != "" }

// GreaterThan compares amounts. Currencies are not converted.
func (m Money) GreaterThan(other Money) bool { return m.amount.GreaterThan(other.amount) }

// String returns a human-readable representation of the amount.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(minorDigits), m.currency)
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
