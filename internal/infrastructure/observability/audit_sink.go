package observability

import (
	"context"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/rs/zerolog"
)

// LogAuditSink writes one structured line per lifecycle transition.
type LogAuditSink struct {
	logger zerolog.Logger
}

func NewLogAuditSink(logger zerolog.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogAuditSink) Record(_ context.Context, e audit.Event) {
	var evt *zerolog.Event
	switch e.State {
	case audit.StateTransportFailure, audit.StateMalformed, audit.StateUnresolved, audit.StateGatewayError:
		evt = s.logger.Warn()
	default:
		evt = s.logger.Info()
	}

	evt = evt.
		Str("reference", e.Reference).
		Str("event", string(e.Operation)).
		Str("state", string(e.State)).
		Time("occurred_at", e.OccurredAt)
	if e.TransactionID != "" {
		evt = evt.Str("transaction_id", e.TransactionID)
	}
	if e.Message != "" {
		evt = evt.Str("message", e.Message)
	}
	if e.MaskedCard != "" {
		evt = evt.Str("masked_card", e.MaskedCard)
	}
	if len(e.Errors) > 0 {
		evt = evt.Strs("errors", e.Errors)
	}
	evt.Msg("payment lifecycle")
}
