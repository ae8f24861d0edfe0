package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.Join(
		domainErrors.NewValidationError("card_number", "is required"),
		domainErrors.NewValidationError("cvv", "is required"),
	)

	writeError(w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "card_number")
	assert.Contains(t, response.Error, "cvv")
}

func TestWriteError_Mappings(t *testing.T) {
	breakerOpen := testutil.BreakerOpenReply().Err
	timeout := testutil.TimeoutReply().Err

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"payment not found", domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"invalid amount", fmt.Errorf("%w: -1 is negative", domainErrors.ErrInvalidAmount), http.StatusBadRequest, "invalid_amount"},
		{"duplicate reference", domainErrors.ErrDuplicateReference, http.StatusConflict, "duplicate_reference"},
		{"lock held", fmt.Errorf("lock ORDER-1: %w", domainErrors.ErrLockAcquisitionFailed), http.StatusConflict, "payment_in_progress"},
		{"not refundable", domainErrors.NewDomainError("not_refundable", "payment is declined", domainErrors.ErrNotRefundable), http.StatusConflict, "not_refundable"},
		{"declined outcome", payment.Declined("Insufficient funds").Err(), http.StatusPaymentRequired, "declined"},
		{"gateway error outcome", payment.GatewayError([]string{"Invalid card"}).Err(), http.StatusBadGateway, "gateway_error"},
		{"malformed outcome", payment.Malformed(errors.New("bad json")).Err(), http.StatusBadGateway, "malformed_response"},
		{"unresolved outcome", payment.Unresolved(timeout).Err(), http.StatusAccepted, "payment_status_unknown"},
		{"transport failure outcome", payment.TransportFailure(timeout).Err(), http.StatusServiceUnavailable, "transport_failure"},
		{"breaker open outcome", payment.TransportFailure(breakerOpen).Err(), http.StatusServiceUnavailable, "gateway_unavailable"},
		{"raw transport error", &gateway.TransportError{Method: "GET", Sent: true, Err: context.DeadlineExceeded}, http.StatusServiceUnavailable, "transport_failure"},
		{"forbidden", domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.Nil(t, response.Payment)
		})
	}
}

func TestWritePaymentError_IncludesRecord(t *testing.T) {
	p := testutil.NewTestPayment("ORDER-1", "10.00", payment.StatusUnknown, 0)

	w := httptest.NewRecorder()
	writePaymentError(w, payment.Unresolved(nil).Err(), p)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Payment)
	assert.Equal(t, "ORDER-1", response.Payment.Reference)
	assert.Equal(t, "unknown", response.Payment.Status)
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewDomainError("custom_error", "custom error message", nil)

	writeError(w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	p := testutil.NewTestPayment("ORDER-1", "10.00", payment.StatusCaptured, 0)

	writePaymentError(w, errors.New("unexpected error"), p)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
	assert.Nil(t, response.Payment)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	type TestStruct struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
	}

	body := `{"name":"John","email":"john@example.com"}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	require.NoError(t, err)
	assert.Equal(t, "John", result.Name)
	assert.Equal(t, "john@example.com", result.Email)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	type TestStruct struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{invalid json}`))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	var validationErr *domainErrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")
}

func TestDecodeAndValidate_ReportsJSONFieldName(t *testing.T) {
	type TestStruct struct {
		Email string `json:"email_address" validate:"required,email"`
	}

	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{"email_address":"not-an-email"}`))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	var validationErr *domainErrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "email_address", validationErr.Field)
	assert.Contains(t, validationErr.Message, "email validation failed")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
}

func TestDecode_EmptyBody(t *testing.T) {
	type TestStruct struct {
		Reference string `json:"reference" validate:"omitempty,max=5"`
	}

	var result TestStruct
	req := httptest.NewRequest("POST", "/test", bytes.NewReader(nil))
	assert.Error(t, decodeAndValidate(req, &result))

	req = httptest.NewRequest("POST", "/test", bytes.NewReader(nil))
	assert.NoError(t, decodeOptional(req, &result))

	req = httptest.NewRequest("POST", "/test", strings.NewReader(`{"reference":"too-long"}`))
	assert.Error(t, decodeOptional(req, &result))
}
