package errors

import (
	"errors"
	"fmt"
)

var (
	// Caller errors, always detected before any gateway call.
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidRequest = errors.New("invalid request")

	// Gateway exchange errors
	ErrTransportFailure   = errors.New("gateway transport failure")
	ErrMalformedResponse  = errors.New("malformed gateway response")
	ErrGatewayError       = errors.New("gateway error")
	ErrDeclined           = errors.New("transaction declined")
	ErrUnresolved         = errors.New("payment status unknown")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrReferenceNotFound  = errors.New("reference not found at gateway")

	// Payment record errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateReference     = errors.New("duplicate merchant reference")
	ErrNotRefundable          = errors.New("payment cannot be refunded")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError reports a missing or malformed request field. It matches
// ErrInvalidRequest under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
