package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paymentApp "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	"github.com/cassiomorais/cardgateway/internal/testutil"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverCall struct {
	limit  int
	minAge time.Duration
}

type fakeResolver struct {
	mu     sync.Mutex
	calls  []resolverCall
	report paymentApp.ReconcileReport
	err    error
}

func (f *fakeResolver) ResolvePending(_ context.Context, limit int, minAge time.Duration) (paymentApp.ReconcileReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, resolverCall{limit, minAge})
	return f.report, f.err
}

func (f *fakeResolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var (
	testCfg       = config.ReconciliationConfig{PollInterval: 5 * time.Millisecond, BatchSize: 7, MinAge: time.Minute}
	testCfgLookup = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
)

func TestReconciler_RunOnceRecordsMetrics(t *testing.T) {
	resolver := &fakeResolver{report: paymentApp.ReconcileReport{Checked: 3, Captured: 2, Unknown: 1}}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	r := NewReconciler(resolver, testCfg, metrics, zerolog.Nop())

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Captured)
	assert.Equal(t, []resolverCall{{7, time.Minute}}, resolver.calls)
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.WorkerRecordsProcessed.WithLabelValues("captured")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.WorkerRecordsProcessed.WithLabelValues("unknown")))
}

func TestReconciler_RunOnceReturnsError(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	r := NewReconciler(resolver, testCfg, nil, zerolog.Nop())

	_, err := r.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestReconciler_RunPollsUntilCancelled(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("transient")}
	r := NewReconciler(resolver, testCfg, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return resolver.count() >= 3 }, time.Second, time.Millisecond,
		"errors must not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReconciler_SettlesUnknownPayments(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	gw := testutil.NewMockGateway().OnGet(testutil.ApprovedReply("txn_1", "Approved"))
	purchases := paymentApp.NewTransactionProcessor(gw, testCfgLookup, nil, nil, zerolog.Nop())
	refunds := paymentApp.NewRefundProcessor(gw, testCfgLookup, nil, nil, zerolog.Nop())
	method := paymentApp.NewGatewayMethod(repo, testutil.NewMockTransactionManager(), testutil.NewMockLocker(),
		purchases, refunds, nil, zerolog.Nop())

	stale := testutil.NewTestPayment("ORDER-1", "10.00", payment.StatusUnknown, time.Hour)
	fresh := testutil.NewTestPayment("ORDER-2", "10.00", payment.StatusUnknown, time.Second)
	repo.Put(stale)
	repo.Put(fresh)

	r := NewReconciler(method, testCfg, nil, zerolog.Nop())
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, paymentApp.ReconcileReport{Checked: 1, Captured: 1}, report)
	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCaptured, got.Status)
	assert.Zero(t, gw.Count("POST"))
}
