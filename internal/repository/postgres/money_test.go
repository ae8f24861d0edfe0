package postgres

import (
	"testing"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToMoney_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whole dollars", "100", "100.00 AUD"},
		{"four places from column", "49.9900", "49.99 AUD"},
		{"cents only", "0.99", "0.99 AUD"},
		{"zero", "0.0000", "0.00 AUD"},
		{"with whitespace", "  50.25  ", "50.25 AUD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := numericToMoney(tt.input, "aud")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.String())
		})
	}
}

func TestNumericToMoney_Errors(t *testing.T) {
	_, err := numericToMoney("", "AUD")
	assert.Error(t, err)

	_, err = numericToMoney("abc", "AUD")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)

	_, err = numericToMoney("-1.00", "AUD")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
}

func TestMoneyToNumeric_RoundTrip(t *testing.T) {
	for _, in := range []string{"0", "0.01", "49.99", "12345.6789"} {
		m, err := money.Parse(in, "AUD")
		require.NoError(t, err)

		back, err := numericToMoney(moneyToNumeric(m), "AUD")
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(back.Amount()), in)
	}
}
