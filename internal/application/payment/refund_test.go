package payment_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	paymentApp "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRefunder(gw paymentApp.Gateway) (*paymentApp.RefundProcessor, *audit.Recorder) {
	rec := &audit.Recorder{}
	return paymentApp.NewRefundProcessor(gw, fastLookup, rec, nil, zerolog.Nop()), rec
}

func refundRequest(amount string) payment.RefundRequest {
	return payment.RefundRequest{
		TransactionID: "txn_555",
		Amount:        testutil.MustMoney(amount, "AUD"),
		Reference:     "ORDER-1001-R",
	}
}

func TestRefund_Approved(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.ApprovedReply("txn_r1", "Approved"))
	p, rec := newRefunder(gw)

	o, err := p.Refund(context.Background(), refundRequest("12.35"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeApproved, o.Kind)
	assert.Equal(t, "txn_r1", o.TransactionID)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, gateway.PathRefunds, calls[0].Path)
	payload, ok := calls[0].Payload.(gateway.RefundPayload)
	require.True(t, ok)
	assert.Equal(t, int64(1235), payload.Amount)
	assert.Equal(t, "txn_555", payload.TransactionID)

	assert.Equal(t, []audit.State{audit.StateBuilt, audit.StateSubmitted, audit.StateApproved}, rec.States())
	assert.Equal(t, audit.OperationRefund, rec.Events()[0].Operation)
}

func TestRefund_RejectsNonPositiveAmountBeforeAnyCall(t *testing.T) {
	for _, amount := range []string{"0", "0.00"} {
		gw := testutil.NewMockGateway()
		p, _ := newRefunder(gw)

		_, err := p.Refund(context.Background(), refundRequest(amount))
		assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest, amount)
		assert.Empty(t, gw.Calls(), amount)
	}

	// negative amounts cannot even be constructed
	_, err := money.Parse("-1.00", "AUD")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
}

func TestRefund_RequiresTransactionAndReference(t *testing.T) {
	gw := testutil.NewMockGateway()
	p, _ := newRefunder(gw)

	req := refundRequest("1.00")
	req.TransactionID = ""
	req.Reference = " "
	_, err := p.Refund(context.Background(), req)

	assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
	assert.Empty(t, gw.Calls())
}

func TestRefund_TransportFailureIsSurfacedNotRetried(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.TimeoutReply())
	p, rec := newRefunder(gw)

	o, err := p.Refund(context.Background(), refundRequest("5.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeTransportFailure, o.Kind)
	assert.Len(t, gw.Calls(), 1)
	assert.NotContains(t, rec.States(), audit.StateReconciling)
}

func TestRefund_DeclineAndGatewayError(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.DeclinedReply("", "Refund exceeds original"), testutil.GatewayErrorReply(http.StatusUnprocessableEntity))
	p, _ := newRefunder(gw)

	o, err := p.Refund(context.Background(), refundRequest("5.00"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDeclined, o.Kind)
	assert.ErrorIs(t, o.Err(), domainErrors.ErrDeclined)

	o, err = p.Refund(context.Background(), refundRequest("5.00"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeGatewayError, o.Kind)
	require.Len(t, o.Errors, 1, "a generic error is synthesized")
	assert.Contains(t, o.Errors[0], "422")
}

func TestRefundLookup_ReadsOnly(t *testing.T) {
	gw := testutil.NewMockGateway().OnGet(testutil.ApprovedReply("txn_r1", "Approved"))
	p, rec := newRefunder(gw)

	o := p.Lookup(context.Background(), "ORDER-1001-R")

	assert.Equal(t, payment.OutcomeApproved, o.Kind)
	assert.True(t, o.Reconciled)
	assert.Equal(t, 0, gw.Count("POST"))
	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, gateway.PathRefunds, calls[0].Path)
	assert.Equal(t, audit.OperationLookup, rec.Events()[0].Operation)
}

func TestRefund_FailureIsLoggedWithReferenceAndPayload(t *testing.T) {
	var logs strings.Builder
	gw := testutil.NewMockGateway().OnPost(testutil.TimeoutReply())
	p := paymentApp.NewRefundProcessor(gw, fastLookup, nil, nil, zerolog.New(&logs))

	_, err := p.Refund(context.Background(), refundRequest("5.00"))
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"message":"refund request failed"`)
	assert.Contains(t, out, `"reference":"ORDER-1001-R"`)
	assert.Contains(t, out, `"transaction_id":"txn_555"`)
	assert.Contains(t, out, `"amount":500`)
	assert.Contains(t, out, `"sent":true`)
}
