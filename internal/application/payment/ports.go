package payment

import (
	"context"
	"time"

	"github.com/cassiomorais/cardgateway/internal/gateway"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Gateway is the authenticated exchange with the card gateway.
// *gateway.Client implements it.
type Gateway interface {
	Post(ctx context.Context, path string, payload any) (*gateway.Response, error)
	Get(ctx context.Context, path, id string) (*gateway.Response, error)
	TestMode() bool
}

// Locker serializes work on one merchant reference. The returned function
// releases the lock.
type Locker interface {
	Lock(ctx context.Context, reference string) (func(context.Context) error, error)
}

// MetricsRecorder receives one observation per finished operation.
type MetricsRecorder interface {
	RecordOutcome(operation, outcome string, reconciled bool, elapsed time.Duration)
	RecordReconciliation(source, outcome string)
	TrackActive() func()
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(string, string, bool, time.Duration) {}
func (noopMetrics) RecordReconciliation(string, string)                {}
func (noopMetrics) TrackActive() func()                               { return func() {} }

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
