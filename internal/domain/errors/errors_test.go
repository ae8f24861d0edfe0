package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "declined",
				Message: "unable to process payment",
				Err:     ErrDeclined,
			},
			expected: "unable to process payment: transaction declined",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_refund",
				Message: "payment has not been captured",
				Err:     nil,
			},
			expected: "payment has not been captured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	domainErr := NewDomainError("payment_status_unknown", "do not assume success or failure", ErrUnresolved)

	assert.Equal(t, ErrUnresolved, domainErr.Unwrap())
	assert.ErrorIs(t, domainErr, ErrUnresolved)
	assert.NotErrorIs(t, domainErr, ErrDeclined)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("reference", "is required")

	assert.Equal(t, "reference", err.Field)
	assert.Equal(t, "validation failed for field reference: is required", err.Error())
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrInvalidAmount)
}

func TestValidationError_Joined(t *testing.T) {
	joined := errors.Join(
		NewValidationError("transaction_id", "is required"),
		NewValidationError("amount", "must be greater than 0"),
	)

	assert.ErrorIs(t, joined, ErrInvalidRequest)

	var ve *ValidationError
	assert.True(t, errors.As(joined, &ve))
	assert.Equal(t, "transaction_id", ve.Field)
}
