// Package worker runs the deferred reconciliation loop that settles payments
// whose gateway outcome was left unknown.
package worker

import (
	"context"
	"time"

	paymentApp "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Resolver settles pending payments through read-only gateway lookups.
type Resolver interface {
	ResolvePending(ctx context.Context, limit int, minAge time.Duration) (paymentApp.ReconcileReport, error)
}

// Reconciler polls for unknown payments and resolves them in batches. It
// never submits a purchase.
type Reconciler struct {
	resolver  Resolver
	interval  time.Duration
	batchSize int
	minAge    time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReconciler(resolver Resolver, cfg config.ReconciliationConfig, metrics *observability.Metrics, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		resolver:  resolver,
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		minAge:    cfg.MinAge,
		metrics:   metrics,
		logger:    logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run processes one batch immediately and then one per poll interval until
// ctx is cancelled. Batch errors are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("Reconciliation batch failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce resolves a single batch.
func (r *Reconciler) RunOnce(ctx context.Context) (paymentApp.ReconcileReport, error) {
	start := time.Now()
	report, err := r.resolver.ResolvePending(ctx, r.batchSize, r.minAge)
	if err != nil {
		return report, err
	}

	r.metrics.RecordReconcilerBatch(map[string]int{
		"captured": report.Captured,
		"declined": report.Declined,
		"unknown":  report.Unknown,
		"skipped":  report.Skipped,
	}, time.Since(start))

	if report.Checked > 0 {
		r.logger.Info().
			Int("checked", report.Checked).
			Int("captured", report.Captured).
			Int("declined", report.Declined).
			Int("unknown", report.Unknown).
			Int("skipped", report.Skipped).
			Dur("elapsed", time.Since(start)).
			Msg("Reconciliation batch done")
	}
	return report, nil
}
