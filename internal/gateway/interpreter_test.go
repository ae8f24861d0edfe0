package gateway

import (
	"errors"
	"net/http"
	"testing"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, status int, body string) *Response {
	t.Helper()
	res, err := decodeResponse(status, []byte(body))
	require.NoError(t, err)
	return res
}

func TestInterpret_DecisionTable(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    payment.OutcomeKind
		txID    string
		message string
		errors  []string
		masked  string
	}{
		{
			name:    "approved",
			body:    approvedBody,
			kind:    payment.OutcomeApproved,
			txID:    "txn_555",
			message: "Approved",
			masked:  "XXXXXXXXXXXX1111",
		},
		{
			name:    "envelope ok, transaction declined",
			body:    `{"successful":true,"response":{"successful":false,"id":"txn_9","message":"Insufficient funds"},"errors":[]}`,
			kind:    payment.OutcomeDeclined,
			txID:    "txn_9",
			message: "Insufficient funds",
		},
		{
			name:   "envelope false with errors",
			body:   `{"successful":false,"response":{"successful":true,"id":"ignored"},"errors":["Invalid card number","Expired"]}`,
			kind:   payment.OutcomeGatewayError,
			errors: []string{"Invalid card number", "Expired"},
		},
		{
			name:   "envelope absent",
			body:   `{"response":{"successful":true,"id":"txn_1"}}`,
			kind:   payment.OutcomeGatewayError,
			errors: []string{genericGatewayError},
		},
		{
			name:   "envelope false without errors",
			body:   `{"successful":false,"errors":[""]}`,
			kind:   payment.OutcomeGatewayError,
			errors: []string{genericGatewayError},
		},
		{
			name: "envelope ok without response object",
			body: `{"successful":true}`,
			kind: payment.OutcomeMalformed,
		},
		{
			name: "approval without id",
			body: `{"successful":true,"response":{"successful":true,"message":"Approved"}}`,
			kind: payment.OutcomeMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Interpret(mustDecode(t, http.StatusOK, tt.body), nil)
			assert.Equal(t, tt.kind, o.Kind)
			if tt.txID != "" {
				assert.Equal(t, tt.txID, o.TransactionID)
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, o.Message)
			}
			if tt.errors != nil {
				assert.Equal(t, tt.errors, o.Errors)
			}
			if tt.masked != "" {
				assert.Equal(t, tt.masked, o.MaskedCard)
			}
		})
	}
}

func TestInterpret_Example(t *testing.T) {
	o := Interpret(mustDecode(t, http.StatusOK,
		`{"successful":true,"response":{"successful":true,"id":"txn_555","message":"Approved"}}`), nil)

	assert.Equal(t, payment.Approved("txn_555", "Approved"), o)
}

func TestInterpret_GatewayErrorIncludesStatus(t *testing.T) {
	o := Interpret(mustDecode(t, http.StatusUnauthorized, `{"successful":false}`), nil)
	assert.Equal(t, payment.OutcomeGatewayError, o.Kind)
	assert.Equal(t, []string{genericGatewayError + " (HTTP 401)"}, o.Errors)
}

func TestInterpret_Errors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		err := &TransportError{Method: http.MethodPost, URL: "u", Sent: true, Err: errors.New("timeout")}
		o := Interpret(nil, err)
		assert.Equal(t, payment.OutcomeTransportFailure, o.Kind)
		assert.ErrorIs(t, o.Err(), domainErrors.ErrTransportFailure)
	})

	t.Run("non-2xx unreadable body stays transport", func(t *testing.T) {
		_, decodeErr := decodeResponse(http.StatusBadGateway, []byte("<html>"))
		err := &TransportError{Method: http.MethodPost, URL: "u", StatusCode: http.StatusBadGateway, Sent: true, Err: decodeErr}
		o := Interpret(nil, err)
		assert.Equal(t, payment.OutcomeTransportFailure, o.Kind)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := decodeResponse(http.StatusOK, []byte("{"))
		o := Interpret(nil, err)
		assert.Equal(t, payment.OutcomeMalformed, o.Kind)
		assert.ErrorIs(t, o.Err(), domainErrors.ErrMalformedResponse)
	})

	t.Run("unexpected error", func(t *testing.T) {
		o := Interpret(nil, errors.New("boom"))
		assert.Equal(t, payment.OutcomeMalformed, o.Kind)
		assert.ErrorIs(t, o.Err(), domainErrors.ErrMalformedResponse)
	})

	t.Run("nil response", func(t *testing.T) {
		o := Interpret(nil, nil)
		assert.Equal(t, payment.OutcomeMalformed, o.Kind)
	})
}
