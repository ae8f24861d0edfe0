package testutil

import (
	"context"
	"errors"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// TestCardNumber is the gateway's sandbox approval card.
const TestCardNumber = "4005550000000001"

func MustMoney(amount, currency string) money.Money {
	m, err := money.Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func NewTestPurchase(reference, amount string) payment.PurchaseRequest {
	return payment.PurchaseRequest{
		Amount:    MustMoney(amount, "AUD"),
		Reference: reference,
		Card: payment.CardDetails{
			Holder:      "Jane & John Smith",
			Number:      TestCardNumber,
			ExpiryMonth: 5,
			ExpiryYear:  2030,
			CVV:         "123",
		},
		Customer: payment.Customer{IP: "203.0.113.9", Email: "jane@example.com"},
	}
}

// NewTestPayment returns a stored-looking record in the given status,
// last updated age ago.
func NewTestPayment(reference, amount string, status payment.Status, age time.Duration) *payment.Payment {
	p, err := payment.NewPayment(reference, MustMoney(amount, "AUD"))
	if err != nil {
		panic(err)
	}
	p.Status = status
	if status == payment.StatusCaptured {
		txID := "txn_" + reference
		p.GatewayTransactionID = &txID
		now := time.Now()
		p.CompletedAt = &now
	}
	p.UpdatedAt = time.Now().Add(-age)
	p.CreatedAt = p.UpdatedAt
	return p
}

func boolPtr(b bool) *bool { return &b }

// ApprovedReply is an envelope success carrying an approved transaction.
func ApprovedReply(id, message string) Reply {
	return Reply{Response: &gateway.Response{
		Successful: boolPtr(true),
		Result:     &gateway.TransactionResult{Successful: true, ID: id, Message: message, CardNumber: "XXXXXXXXXXXX0001"},
		HTTPStatus: http.StatusOK,
	}}
}

// DeclinedReply is an envelope success carrying a declined transaction.
func DeclinedReply(id, message string) Reply {
	return Reply{Response: &gateway.Response{
		Successful: boolPtr(true),
		Result:     &gateway.TransactionResult{Successful: false, ID: id, Message: message},
		HTTPStatus: http.StatusOK,
	}}
}

func GatewayErrorReply(status int, errs ...string) Reply {
	return Reply{Response: &gateway.Response{Successful: boolPtr(false), Errors: errs, HTTPStatus: status}}
}

// NotFoundReply is what a lookup of an unknown reference returns.
func NotFoundReply() Reply {
	return GatewayErrorReply(http.StatusNotFound, "Record not found")
}

// TimeoutReply is a transport failure after the request was sent.
func TimeoutReply() Reply {
	return Reply{Err: &gateway.TransportError{Method: "POST", URL: "https://gateway.test", Sent: true, Err: context.DeadlineExceeded}}
}

// BreakerOpenReply is a transport failure that never left the process.
func BreakerOpenReply() Reply {
	return Reply{Err: &gateway.TransportError{Method: "POST", URL: "https://gateway.test", Sent: false, Err: domainErrors.ErrGatewayUnavailable}}
}

func MalformedReply() Reply {
	return Reply{Err: &gateway.MalformedResponseError{Kind: gateway.MalformedSyntax, Sample: "<html>", Err: errors.New("invalid character '<'")}}
}
