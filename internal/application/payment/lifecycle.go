package payment

import (
	"context"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/cassiomorais/cardgateway/internal/application/payment")

// lifecycle emits the audit trail of one purchase, refund or lookup. Every
// event goes to the sink and onto the call's span.
type lifecycle struct {
	ctx       context.Context
	span      trace.Span
	sink      audit.Sink
	operation audit.Operation
	reference string
}

func startLifecycle(ctx context.Context, sink audit.Sink, op audit.Operation, reference string) (*lifecycle, context.Context) {
	ctx, span := tracer.Start(ctx, "payment."+string(op),
		trace.WithAttributes(attribute.String("payment.reference", reference)))
	if sink == nil {
		sink = audit.Discard
	}
	// events are delivered even after the caller gives up
	return &lifecycle{ctx: context.WithoutCancel(ctx), span: span, sink: sink, operation: op, reference: reference}, ctx
}

func (l *lifecycle) emit(state audit.State, e audit.Event) {
	e.Reference = l.reference
	e.Operation = l.operation
	e.State = state
	e.OccurredAt = time.Now()

	attrs := []attribute.KeyValue{attribute.String("payment.state", string(state))}
	if e.TransactionID != "" {
		attrs = append(attrs, attribute.String("payment.transaction_id", e.TransactionID))
	}
	l.span.AddEvent(string(state), trace.WithAttributes(attrs...))
	l.sink.Record(l.ctx, e)
}

// finish emits the terminal state of the outcome and closes the span.
func (l *lifecycle) finish(o payment.Outcome) {
	l.emit(outcomeState(o.Kind), audit.Event{
		TransactionID: o.TransactionID,
		Message:       o.Message,
		MaskedCard:    o.MaskedCard,
		Errors:        o.Errors,
	})
	l.span.SetAttributes(
		attribute.String("payment.outcome", string(o.Kind)),
		attribute.Bool("payment.reconciled", o.Reconciled),
	)
	if o.IsApproved() {
		l.span.SetStatus(codes.Ok, "")
	} else {
		l.span.SetStatus(codes.Error, string(o.Kind))
	}
	l.span.End()
}

// abort closes the span for a call rejected before any I/O.
func (l *lifecycle) abort(err error) {
	l.span.RecordError(err)
	l.span.SetStatus(codes.Error, err.Error())
	l.span.End()
}

func outcomeState(kind payment.OutcomeKind) audit.State {
	switch kind {
	case payment.OutcomeApproved:
		return audit.StateApproved
	case payment.OutcomeDeclined:
		return audit.StateDeclined
	case payment.OutcomeGatewayError:
		return audit.StateGatewayError
	case payment.OutcomeMalformed:
		return audit.StateMalformed
	case payment.OutcomeTransportFailure:
		return audit.StateTransportFailure
	default:
		return audit.StateUnresolved
	}
}
