// Package audit defines the lifecycle event stream emitted by the payment
// processors. Events are keyed by merchant reference and never carry raw
// card data.
package audit

import (
	"context"
	"sync"
	"time"
)

// Operation names the gateway operation an event belongs to.
type Operation string

const (
	OperationPurchase Operation = "purchase"
	OperationRefund   Operation = "refund"
	OperationLookup   Operation = "lookup"
)

// State is a node of the processor state machine.
type State string

const (
	StateBuilt            State = "built"
	StateSubmitted        State = "submitted"
	StateApproved         State = "approved"
	StateDeclined         State = "declined"
	StateGatewayError     State = "gateway_error"
	StateMalformed        State = "malformed"
	StateTransportFailure State = "transport_failure"
	StateReconciling      State = "reconciling"
	StateUnresolved       State = "unresolved"
)

// Event is one transition of a purchase or refund.
type Event struct {
	Reference     string
	Operation     Operation
	State         State
	TransactionID string
	Message       string
	MaskedCard    string
	Errors        []string
	OccurredAt    time.Time
}

// Sink consumes audit events. Record must not block the caller for long and
// must not fail the payment flow; sinks log their own delivery errors.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Record(ctx context.Context, event Event) { f(ctx, event) }

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, event Event) {
	for _, s := range f {
		if s != nil {
			s.Record(ctx, event)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Recorder collects events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Record(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// States returns the recorded states in order.
func (r *Recorder) States() []State {
	events := r.Events()
	out := make([]State, 0, len(events))
	for _, e := range events {
		out = append(out, e.State)
	}
	return out
}
