package payment

import (
	"context"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/rs/zerolog"
)

// RefundProcessor refunds a prior approved purchase. A refund is posted at
// most once per call; a failed refund is retried only by an operator.
type RefundProcessor struct {
	gateway Gateway
	lookup  retry.Config
	sink    audit.Sink
	metrics MetricsRecorder
	logger  zerolog.Logger
}

func NewRefundProcessor(gw Gateway, lookup retry.Config, sink audit.Sink, metrics MetricsRecorder, logger zerolog.Logger) *RefundProcessor {
	if sink == nil {
		sink = audit.Discard
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RefundProcessor{
		gateway: gw,
		lookup:  lookup,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With().Str("component", "refund_processor").Logger(),
	}
}

// Refund validates req and posts it. An invalid request fails with
// ErrInvalidRequest before any network call.
func (p *RefundProcessor) Refund(ctx context.Context, req payment.RefundRequest) (payment.Outcome, error) {
	lc, ctx := startLifecycle(ctx, p.sink, audit.OperationRefund, req.Reference)

	payload, err := gateway.BuildRefund(req, p.gateway.TestMode())
	if err != nil {
		lc.abort(err)
		return payment.Outcome{}, err
	}

	start := time.Now()
	lc.emit(audit.StateBuilt, audit.Event{TransactionID: req.TransactionID})
	lc.emit(audit.StateSubmitted, audit.Event{TransactionID: req.TransactionID})

	res, postErr := p.gateway.Post(ctx, gateway.PathRefunds, payload)
	outcome := gateway.Interpret(res, postErr)
	if isNetworkFailure(outcome) {
		p.logger.Warn().Err(outcome.Cause).
			Str("reference", req.Reference).
			Str("outcome", string(outcome.Kind)).
			Bool("sent", !gateway.NotSent(postErr)).
			Strs("errors", outcome.Errors).
			Object("payload", payload).
			Msg("refund request failed")
	}

	lc.finish(outcome)
	p.metrics.RecordOutcome(string(audit.OperationRefund), string(outcome.Kind), false, time.Since(start))

	ev := p.logger.Info()
	if !outcome.IsApproved() {
		ev = p.logger.Warn()
	}
	ev.Str("reference", req.Reference).
		Str("original_transaction_id", req.TransactionID).
		Str("outcome", string(outcome.Kind)).
		Str("transaction_id", outcome.TransactionID).
		Msg("refund finished")
	return outcome, nil
}

// Lookup reads the state of a refund by its reference. It never re-posts.
func (p *RefundProcessor) Lookup(ctx context.Context, reference string) payment.Outcome {
	lc, ctx := startLifecycle(ctx, p.sink, audit.OperationLookup, reference)
	lc.emit(audit.StateReconciling, audit.Event{})

	outcome := lookup(ctx, p.gateway, p.lookup, p.logger, gateway.PathRefunds, reference)
	lc.finish(outcome)
	p.metrics.RecordReconciliation("refund_lookup", string(outcome.Kind))
	return outcome
}
