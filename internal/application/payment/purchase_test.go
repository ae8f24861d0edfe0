package payment_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	paymentApp "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/testutil"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastLookup = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newPurchaser(gw paymentApp.Gateway) (*paymentApp.TransactionProcessor, *audit.Recorder) {
	rec := &audit.Recorder{}
	return paymentApp.NewTransactionProcessor(gw, fastLookup, rec, nil, zerolog.Nop()), rec
}

func TestPurchase_Approved(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.ApprovedReply("txn_555", "Approved"))
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-1001", "49.99"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeApproved, o.Kind)
	assert.Equal(t, "txn_555", o.TransactionID)
	assert.Equal(t, "Approved", o.Message)
	assert.False(t, o.Reconciled)
	assert.Equal(t, 0, gw.Count("GET"))
	assert.Equal(t, []audit.State{audit.StateBuilt, audit.StateSubmitted, audit.StateApproved}, rec.States())

	last := rec.Events()[2]
	assert.Equal(t, "ORDER-1001", last.Reference)
	assert.Equal(t, audit.OperationPurchase, last.Operation)
	assert.Equal(t, "txn_555", last.TransactionID)
}

func TestPurchase_DeclineIsNotReconciled(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.DeclinedReply("txn_9", "Declined"))
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-1", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeDeclined, o.Kind)
	assert.Equal(t, "Declined", o.Message)
	assert.Equal(t, 1, gw.Count("POST"))
	assert.Equal(t, 0, gw.Count("GET"))
	assert.Equal(t, []audit.State{audit.StateBuilt, audit.StateSubmitted, audit.StateDeclined}, rec.States())
}

func TestPurchase_GatewayErrorIsTerminal(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.GatewayErrorReply(http.StatusUnauthorized, "Authentication failed"))
	p, _ := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-2", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeGatewayError, o.Kind)
	assert.Equal(t, []string{"Authentication failed"}, o.Errors)
	assert.Equal(t, 1, len(gw.Calls()))
}

func TestPurchase_MalformedIsNotTreatedAsSuccess(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.MalformedReply())
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-3", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeMalformed, o.Kind)
	assert.ErrorIs(t, o.Err(), domainErrors.ErrMalformedResponse)
	assert.Equal(t, 0, gw.Count("GET"))
	assert.Equal(t, audit.StateMalformed, rec.States()[2])
}

func TestPurchase_TransportFailureReconciledToApproved(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.ApprovedReply("txn_777", "Approved"))
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-1001", "49.99"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeApproved, o.Kind)
	assert.Equal(t, "txn_777", o.TransactionID, "id comes from the lookup")
	assert.True(t, o.Reconciled)
	assert.Equal(t, 1, gw.Count("POST"), "never re-posted")

	calls := gw.Calls()
	assert.Equal(t, gateway.PathPurchases, calls[1].Path)
	assert.Equal(t, "ORDER-1001", calls[1].ID)

	assert.Equal(t, []audit.State{
		audit.StateBuilt, audit.StateSubmitted, audit.StateTransportFailure,
		audit.StateReconciling, audit.StateApproved,
	}, rec.States())
}

func TestPurchase_TransportFailureReconciledToDeclined(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.DeclinedReply("txn_8", "Insufficient funds"))
	p, _ := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-4", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDeclined, o.Kind)
	assert.True(t, o.Reconciled)
}

func TestPurchase_LookupTransportFailureIsUnresolved(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.TimeoutReply())
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-5", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeUnresolved, o.Kind)
	assert.Empty(t, o.TransactionID)
	assert.ErrorIs(t, o.Err(), domainErrors.ErrUnresolved)
	assert.Equal(t, 1, gw.Count("POST"))
	assert.Equal(t, int(fastLookup.MaxAttempts), gw.Count("GET"), "only the read-only lookup is retried")

	for _, s := range rec.States() {
		assert.NotEqual(t, audit.StateApproved, s)
		assert.NotEqual(t, audit.StateDeclined, s)
	}
	assert.Equal(t, audit.StateUnresolved, rec.States()[len(rec.States())-1])
}

func TestPurchase_LookupNotFoundIsUnresolved(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.NotFoundReply())
	p, _ := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-6", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeUnresolved, o.Kind)
	assert.ErrorIs(t, o.Cause, domainErrors.ErrReferenceNotFound)
	assert.Equal(t, 1, gw.Count("GET"), "a definite answer is not retried")
}

func TestPurchase_LookupReferenceMismatchIsUnresolved(t *testing.T) {
	other := testutil.ApprovedReply("txn_1", "Approved")
	other.Response.Result.Reference = "ORDER-OTHER"
	gw := testutil.NewMockGateway().OnPost(testutil.TimeoutReply()).OnGet(other)
	p, _ := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-7", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeUnresolved, o.Kind)
}

func TestPurchase_BreakerOpenIsNotReconciled(t *testing.T) {
	gw := testutil.NewMockGateway().OnPost(testutil.BreakerOpenReply())
	p, rec := newPurchaser(gw)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-8", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, payment.OutcomeTransportFailure, o.Kind)
	assert.ErrorIs(t, o.Err(), domainErrors.ErrGatewayUnavailable)
	assert.Equal(t, 0, gw.Count("GET"))
	assert.NotContains(t, rec.States(), audit.StateReconciling)
}

func TestPurchase_CancelledCallerStillReconciles(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.ApprovedReply("txn_42", "Approved"))
	p, _ := newPurchaser(gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, err := p.Purchase(ctx, testutil.NewTestPurchase("ORDER-9", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApproved, o.Kind)
}

func TestPurchase_InvalidRequestMakesNoCall(t *testing.T) {
	gw := testutil.NewMockGateway()
	p, rec := newPurchaser(gw)

	req := testutil.NewTestPurchase("", "10.00")
	req.Card.CVV = ""

	_, err := p.Purchase(context.Background(), req)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidRequest)
	assert.Empty(t, gw.Calls())
	assert.Empty(t, rec.Events())
}

func TestPurchase_AuditNeverCarriesCardData(t *testing.T) {
	gw := testutil.NewMockGateway().
		OnPost(testutil.TimeoutReply()).
		OnGet(testutil.ApprovedReply("txn_1", "Approved"))
	p, rec := newPurchaser(gw)

	req := testutil.NewTestPurchase("ORDER-10", "10.00")
	_, err := p.Purchase(context.Background(), req)
	require.NoError(t, err)

	dump := fmt.Sprintf("%+v", rec.Events())
	assert.NotContains(t, dump, req.Card.Number)
	assert.NotContains(t, dump, "cvv")
	assert.Contains(t, dump, "XXXXXXXXXXXX0001")
}

// TestPurchase_OverHTTP runs the documented example against a real client.
func TestPurchase_OverHTTP(t *testing.T) {
	var gotAmount atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotAmount.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"successful":true,"response":{"successful":true,"id":"txn_555","message":"Approved"},"errors":[]}`)
	}))
	t.Cleanup(srv.Close)

	client, err := gateway.NewClient(config.GatewayConfig{
		Username: "TEST", Token: "TEST", BaseURL: srv.URL, APIVersion: "1.0", UserAgentVersion: "1.0.0",
	})
	require.NoError(t, err)
	p, _ := newPurchaser(client)

	o, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-1001", "49.99"))
	require.NoError(t, err)

	assert.Equal(t, payment.Approved("txn_555", "Approved").Kind, o.Kind)
	assert.Equal(t, "txn_555", o.TransactionID)
	assert.Equal(t, "Approved", o.Message)
	assert.True(t, strings.Contains(gotAmount.Load().(string), `"amount":4999`))
}

func TestPurchase_FailureIsLoggedWithReferenceAndMaskedPayload(t *testing.T) {
	tests := []struct {
		name  string
		reply testutil.Reply
	}{
		{"breaker open", testutil.BreakerOpenReply()},
		{"malformed", testutil.MalformedReply()},
		{"gateway error", testutil.GatewayErrorReply(401, "Authentication failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs strings.Builder
			gw := testutil.NewMockGateway().OnPost(tt.reply)
			p := paymentApp.NewTransactionProcessor(gw, fastLookup, nil, nil, zerolog.New(&logs))

			req := testutil.NewTestPurchase("ORDER-LOG", "10.00")
			_, err := p.Purchase(context.Background(), req)
			require.NoError(t, err)

			out := logs.String()
			assert.Contains(t, out, `"message":"purchase request failed"`)
			assert.Contains(t, out, `"reference":"ORDER-LOG"`)
			assert.Contains(t, out, `"payload":{`)
			assert.Contains(t, out, "XXXXXXXXXXXX0001")
			assert.NotContains(t, out, req.Card.Number)
			assert.NotContains(t, out, `"cvv"`)
		})
	}
}

func TestPurchase_ApprovedLogsNoFailure(t *testing.T) {
	var logs strings.Builder
	gw := testutil.NewMockGateway().OnPost(testutil.ApprovedReply("txn_1", "Approved"))
	p := paymentApp.NewTransactionProcessor(gw, fastLookup, nil, nil, zerolog.New(&logs))

	_, err := p.Purchase(context.Background(), testutil.NewTestPurchase("ORDER-OK", "10.00"))
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "purchase request failed")
}

func TestPurchaseLookup_IsAudited(t *testing.T) {
	gw := testutil.NewMockGateway().OnGet(testutil.ApprovedReply("txn_late", "Approved"))
	p, rec := newPurchaser(gw)

	o := p.Lookup(context.Background(), "ORDER-11")
	assert.Equal(t, payment.OutcomeApproved, o.Kind)
	assert.True(t, o.Reconciled)

	assert.Equal(t, []audit.State{audit.StateReconciling, audit.StateApproved}, rec.States())
	for _, e := range rec.Events() {
		assert.Equal(t, "ORDER-11", e.Reference)
		assert.Equal(t, audit.OperationLookup, e.Operation)
	}
	assert.Equal(t, "txn_late", rec.Events()[1].TransactionID)
}

func TestPurchaseLookup_NotFoundIsAuditedAsUnresolved(t *testing.T) {
	gw := testutil.NewMockGateway().OnGet(testutil.NotFoundReply())
	p, rec := newPurchaser(gw)

	o := p.Lookup(context.Background(), "ORDER-12")
	assert.Equal(t, payment.OutcomeUnresolved, o.Kind)
	assert.Equal(t, []audit.State{audit.StateReconciling, audit.StateUnresolved}, rec.States())
}
