package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultAuditStream = "payments:audit"

// StreamAuditSink publishes lifecycle events to a Redis stream so the
// surrounding application can update order state and notify customers.
type StreamAuditSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger zerolog.Logger
}

func NewStreamAuditSink(client redis.UniversalClient, stream string, maxLen int64, logger zerolog.Logger) *StreamAuditSink {
	if stream == "" {
		stream = DefaultAuditStream
	}
	return &StreamAuditSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With().Str("component", "audit_stream").Logger(),
	}
}

// Record never fails the payment flow; delivery errors are logged.
func (s *StreamAuditSink) Record(ctx context.Context, e audit.Event) {
	if err := s.Publish(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("reference", e.Reference).
			Str("state", string(e.State)).
			Msg("failed to publish audit event")
	}
}

func (s *StreamAuditSink) Publish(ctx context.Context, e audit.Event) error {
	errs, err := json.Marshal(e.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal audit errors: %w", err)
	}

	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"reference":      e.Reference,
			"event":          string(e.Operation),
			"state":          string(e.State),
			"transaction_id": e.TransactionID,
			"message":        e.Message,
			"masked_card":    e.MaskedCard,
			"errors":         string(errs),
			"timestamp":      occurred.UnixMilli(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// Trail returns the events recorded for reference, scanning at most the
// stream's retained length back from the newest entry.
func (s *StreamAuditSink) Trail(ctx context.Context, reference string) ([]audit.Event, error) {
	count := s.maxLen
	if count <= 0 {
		count = 10000
	}
	return ReadAuditTrail(ctx, s.client, s.stream, reference, count, s.logger)
}

// ReadAuditTrail returns the stream entries for one reference, oldest first.
// It scans the newest count entries; older ones are not visited.
func ReadAuditTrail(ctx context.Context, client redis.UniversalClient, stream, reference string, count int64, logger zerolog.Logger) ([]audit.Event, error) {
	if stream == "" {
		stream = DefaultAuditStream
	}
	msgs, err := client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}

	var out []audit.Event
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if str(m.Values["reference"]) != reference {
			continue
		}
		e := audit.Event{
			Reference:     reference,
			Operation:     audit.Operation(str(m.Values["event"])),
			State:         audit.State(str(m.Values["state"])),
			TransactionID: str(m.Values["transaction_id"]),
			Message:       str(m.Values["message"]),
			MaskedCard:    str(m.Values["masked_card"]),
		}
		if raw := str(m.Values["errors"]); raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &e.Errors); err != nil {
				logger.Warn().Err(err).
					Str("stream", stream).
					Str("entry", m.ID).
					Str("reference", reference).
					Msg("unreadable audit errors field")
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
