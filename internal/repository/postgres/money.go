package postgres

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/cardgateway/internal/domain/money"
)

// numericToMoney parses a NUMERIC column read as text.
func numericToMoney(s, currency string) (money.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return money.Money{}, fmt.Errorf("empty numeric string")
	}
	m, err := money.Parse(s, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return m, nil
}

// moneyToNumeric renders the exact decimal; the column keeps four places.
func moneyToNumeric(m money.Money) string {
	return m.Amount().String()
}
