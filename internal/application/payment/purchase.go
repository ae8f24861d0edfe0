package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/rs/zerolog"
)

// TransactionProcessor runs a purchase against the gateway. A transport
// failure of the POST is resolved by looking the purchase up by merchant
// reference; the purchase is never submitted twice.
//
// The processor holds no per-call state and is safe for concurrent use.
type TransactionProcessor struct {
	gateway Gateway
	lookup  retry.Config
	sink    audit.Sink
	metrics MetricsRecorder
	logger  zerolog.Logger
}

// NewTransactionProcessor creates a TransactionProcessor. lookup bounds the
// reconciliation GET; only transport failures of the GET are retried.
func NewTransactionProcessor(gw Gateway, lookup retry.Config, sink audit.Sink, metrics MetricsRecorder, logger zerolog.Logger) *TransactionProcessor {
	if sink == nil {
		sink = audit.Discard
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TransactionProcessor{
		gateway: gw,
		lookup:  lookup,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With().Str("component", "transaction_processor").Logger(),
	}
}

// Purchase submits req once. The error is non-nil only for an invalid
// request, which is rejected before any network call; every gateway result
// is reported through the Outcome.
func (p *TransactionProcessor) Purchase(ctx context.Context, req payment.PurchaseRequest) (payment.Outcome, error) {
	lc, ctx := startLifecycle(ctx, p.sink, audit.OperationPurchase, req.Reference)

	payload, err := gateway.BuildPurchase(req, p.gateway.TestMode())
	if err != nil {
		lc.abort(err)
		return payment.Outcome{}, err
	}

	start := time.Now()
	defer p.metrics.TrackActive()()

	masked := req.Card.Masked()
	lc.emit(audit.StateBuilt, audit.Event{MaskedCard: masked})
	lc.emit(audit.StateSubmitted, audit.Event{MaskedCard: masked})

	res, postErr := p.gateway.Post(ctx, gateway.PathPurchases, payload)
	outcome := gateway.Interpret(res, postErr)
	if isNetworkFailure(outcome) {
		p.logger.Warn().Err(outcome.Cause).
			Str("reference", req.Reference).
			Str("outcome", string(outcome.Kind)).
			Bool("sent", !gateway.NotSent(postErr)).
			Strs("errors", outcome.Errors).
			Object("payload", payload).
			Msg("purchase request failed")
	}

	if outcome.Kind == payment.OutcomeTransportFailure && !gateway.NotSent(postErr) {
		lc.emit(audit.StateTransportFailure, audit.Event{Message: outcome.Message})
		lc.emit(audit.StateReconciling, audit.Event{})
		// resolve even when the caller has gone
		outcome = lookup(context.WithoutCancel(ctx), p.gateway, p.lookup, p.logger, gateway.PathPurchases, req.Reference)
		p.metrics.RecordReconciliation("inline", string(outcome.Kind))
	}

	if outcome.MaskedCard == "" && outcome.Kind != payment.OutcomeUnresolved {
		outcome.MaskedCard = masked
	}
	lc.finish(outcome)
	p.metrics.RecordOutcome(string(audit.OperationPurchase), string(outcome.Kind), outcome.Reconciled, time.Since(start))
	p.logOutcome(req.Reference, outcome)
	return outcome, nil
}

// Lookup resolves the state of a purchase from the gateway by merchant
// reference. It only reads. The result is Approved, Declined, GatewayError
// or Unresolved, and is always marked Reconciled. The lookup and its result
// are audited like any other transition.
func (p *TransactionProcessor) Lookup(ctx context.Context, reference string) payment.Outcome {
	lc, ctx := startLifecycle(ctx, p.sink, audit.OperationLookup, reference)
	lc.emit(audit.StateReconciling, audit.Event{})

	outcome := lookup(ctx, p.gateway, p.lookup, p.logger, gateway.PathPurchases, reference)
	lc.finish(outcome)
	p.logOutcome(reference, outcome)
	return outcome
}

func (p *TransactionProcessor) logOutcome(reference string, o payment.Outcome) {
	ev := p.logger.Info()
	if !o.IsApproved() {
		ev = p.logger.Warn()
	}
	ev.Str("reference", reference).
		Str("outcome", string(o.Kind)).
		Str("transaction_id", o.TransactionID).
		Bool("reconciled", o.Reconciled).
		Msg("purchase finished")
}

// lookup issues the read-only GET for a purchase or refund reference.
func lookup(ctx context.Context, gw Gateway, cfg retry.Config, logger zerolog.Logger, path, reference string) payment.Outcome {
	res, err := retry.DoWithResult(ctx, cfg,
		func() (*gateway.Response, error) {
			return gw.Get(ctx, path, reference)
		},
		retry.If(isRetryableLookup),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn().Err(err).
				Str("reference", reference).
				Uint("attempt", attempt+1).
				Msg("reconciliation lookup failed")
		}),
	)

	o := resolveLookup(reference, res, err)
	o.Reconciled = true
	return o
}

// isNetworkFailure reports an outcome that is a failure of the exchange with
// the gateway rather than a business decision.
func isNetworkFailure(o payment.Outcome) bool {
	switch o.Kind {
	case payment.OutcomeTransportFailure, payment.OutcomeMalformed, payment.OutcomeGatewayError:
		return true
	}
	return false
}

func isRetryableLookup(err error) bool {
	var te *gateway.TransportError
	return errors.As(err, &te) && te.Sent
}

// resolveLookup maps a lookup result onto the reconciliation outcomes.
// Anything that does not prove the gateway's decision is Unresolved.
func resolveLookup(reference string, res *gateway.Response, err error) payment.Outcome {
	if err != nil {
		return payment.Unresolved(fmt.Errorf("lookup %s: %w", reference, err))
	}
	if res == nil {
		return payment.Unresolved(fmt.Errorf("lookup %s: %w", reference, domainErrors.ErrMalformedResponse))
	}
	if res.HTTPStatus == http.StatusNotFound {
		return payment.Unresolved(fmt.Errorf("lookup %s: %w", reference, domainErrors.ErrReferenceNotFound))
	}
	if res.EnvelopeSuccessful() {
		if res.Result == nil {
			return payment.Unresolved(fmt.Errorf("lookup %s: %w", reference, domainErrors.ErrReferenceNotFound))
		}
		if res.Result.Reference != "" && res.Result.Reference != reference {
			return payment.Unresolved(fmt.Errorf("lookup %s returned reference %s: %w",
				reference, res.Result.Reference, domainErrors.ErrMalformedResponse))
		}
	}

	o := gateway.Interpret(res, nil)
	if o.Kind == payment.OutcomeMalformed {
		return payment.Unresolved(fmt.Errorf("lookup %s: %w", reference, o.Cause))
	}
	return o
}
