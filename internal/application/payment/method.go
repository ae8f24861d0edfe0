package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Method is the capability contract a payment method offers to checkout.
type Method interface {
	CanAuthorize() bool
	Capture(ctx context.Context, req payment.PurchaseRequest) (*payment.Payment, error)
	Refund(ctx context.Context, cmd RefundCommand) (*payment.Payment, error)
}

// RefundCommand refunds a captured payment. A zero Amount refunds the full
// captured amount; an empty Reference derives one from the payment.
type RefundCommand struct {
	PaymentID uuid.UUID
	Amount    money.Money
	Reference string
}

// ReconcileReport counts what one ResolvePending pass did.
type ReconcileReport struct {
	Checked  int
	Captured int
	Declined int
	Unknown  int
	Skipped  int
}

// GatewayMethod captures and refunds through the card gateway and keeps the
// payment record in step with every outcome.
type GatewayMethod struct {
	repo      payment.Repository
	txManager TransactionManager
	locker    Locker
	purchases *TransactionProcessor
	refunds   *RefundProcessor
	metrics   MetricsRecorder
	logger    zerolog.Logger

	concurrency int
}

// MethodOption configures a GatewayMethod.
type MethodOption func(*GatewayMethod)

// WithConcurrency bounds the parallel lookups of ResolvePending.
func WithConcurrency(n int) MethodOption {
	return func(m *GatewayMethod) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func NewGatewayMethod(
	repo payment.Repository,
	txManager TransactionManager,
	locker Locker,
	purchases *TransactionProcessor,
	refunds *RefundProcessor,
	metrics MetricsRecorder,
	logger zerolog.Logger,
	opts ...MethodOption,
) *GatewayMethod {
	if locker == nil {
		locker = noopLocker{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	m := &GatewayMethod{
		repo:        repo,
		txManager:   txManager,
		locker:      locker,
		purchases:   purchases,
		refunds:     refunds,
		metrics:     metrics,
		logger:      logger.With().Str("component", "gateway_method").Logger(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanAuthorize is false: the gateway purchase authorizes and captures in
// one step.
func (m *GatewayMethod) CanAuthorize() bool { return false }

// Capture charges the card for req.Reference. A reference that already has
// a record is only submitted again when the earlier request never reached
// the gateway; otherwise the gateway is asked for the outcome.
// Any outcome other than Approved is returned as an error, with the record
// updated to match.
func (m *GatewayMethod) Capture(ctx context.Context, req payment.PurchaseRequest) (*payment.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := payment.ValidateChargeAmount(req.Amount); err != nil {
		return nil, err
	}

	release, err := m.locker.Lock(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, release, req.Reference)

	rec, err := m.repo.GetByReference(ctx, req.Reference)
	switch {
	case errors.Is(err, domainErrors.ErrPaymentNotFound):
		rec, err = m.create(ctx, req)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load payment: %w", err)
	default:
		if !sameAmount(rec.Amount, req.Amount) {
			return nil, domainErrors.NewDomainError("reference_reused",
				"reference "+req.Reference+" was used for a different amount", domainErrors.ErrDuplicateReference)
		}
		done, err := m.resume(ctx, rec)
		if done {
			return rec, err
		}
	}

	return m.submit(ctx, rec, req)
}

func (m *GatewayMethod) create(ctx context.Context, req payment.PurchaseRequest) (*payment.Payment, error) {
	rec, err := payment.NewPayment(req.Reference, req.Amount)
	if err != nil {
		return nil, err
	}
	rec.Metadata = customerMetadata(req.Customer)
	if err := m.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return rec, nil
}

// resume decides what to do with an existing record. done is false only
// when the purchase may be submitted, which is only the case for a record
// whose earlier request never left the process.
func (m *GatewayMethod) resume(ctx context.Context, rec *payment.Payment) (done bool, err error) {
	switch rec.Status {
	case payment.StatusPending:
		return false, nil
	case payment.StatusCaptured:
		return true, nil
	case payment.StatusDeclined, payment.StatusRefunded:
		return true, domainErrors.NewDomainError("reference_reused",
			"reference "+rec.Reference+" is already "+string(rec.Status), domainErrors.ErrDuplicateReference)
	}

	o := m.purchases.Lookup(ctx, rec.Reference)
	m.metrics.RecordReconciliation("capture", string(o.Kind))
	if err := m.apply(ctx, rec, o); err != nil {
		return true, err
	}
	if rec.Status == payment.StatusFailed {
		return true, domainErrors.NewDomainError("reference_reused",
			"reference "+rec.Reference+" failed at the gateway; use a new reference", domainErrors.ErrDuplicateReference)
	}
	return true, o.Err()
}

func (m *GatewayMethod) submit(ctx context.Context, rec *payment.Payment, req payment.PurchaseRequest) (*payment.Payment, error) {
	if err := rec.MarkSubmitted(); err != nil {
		return nil, err
	}
	if err := m.persist(ctx, rec, "payment.submitted", nil); err != nil {
		return nil, err
	}

	o, err := m.purchases.Purchase(ctx, req)
	if err != nil {
		o = payment.Outcome{Kind: payment.OutcomeGatewayError, Message: err.Error(), Errors: []string{err.Error()}}
	}
	if err := m.apply(ctx, rec, o); err != nil {
		return rec, err
	}
	return rec, o.Err()
}

// Refund refunds a captured payment once. A refund that is not approved
// leaves the payment captured and is reported as an error.
func (m *GatewayMethod) Refund(ctx context.Context, cmd RefundCommand) (*payment.Payment, error) {
	rec, err := m.repo.GetByID(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}

	release, err := m.locker.Lock(ctx, rec.Reference)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, release, rec.Reference)

	// reload under the lock
	if rec, err = m.repo.GetByID(ctx, cmd.PaymentID); err != nil {
		return nil, err
	}
	if err := refundable(rec); err != nil {
		return rec, err
	}

	amount := cmd.Amount
	if !amount.IsSet() {
		amount = rec.Amount
	}
	if amount.Currency() != rec.Amount.Currency() {
		return rec, domainErrors.NewValidationError("amount", "currency must be "+rec.Amount.Currency())
	}
	if amount.GreaterThan(rec.Amount) {
		return rec, domainErrors.NewValidationError("amount", "must not exceed the captured amount")
	}
	if err := payment.ValidateChargeAmount(amount); err != nil {
		return rec, err
	}

	req := payment.RefundRequest{
		TransactionID: *rec.GatewayTransactionID,
		Amount:        amount,
		Reference:     refundReference(rec, cmd.Reference),
	}
	o, err := m.refunds.Refund(ctx, req)
	if err != nil {
		return rec, err
	}

	if !o.IsApproved() {
		m.recordEvent(ctx, rec, "payment.refund_failed", map[string]any{
			"refund_reference": req.Reference,
			"outcome":          string(o.Kind),
			"message":          o.Message,
			"errors":           o.Errors,
		})
		return rec, o.Err()
	}

	if err := rec.MarkRefunded(req.Reference, o.TransactionID); err != nil {
		return rec, err
	}
	if err := m.persist(ctx, rec, "payment.refunded", map[string]any{
		"refund_reference":      req.Reference,
		"refund_transaction_id": o.TransactionID,
		"amount":                amount.String(),
	}); err != nil {
		return rec, err
	}
	return rec, nil
}

// ResolveRefund asks the gateway whether a refund for a captured payment
// went through. It never posts a refund.
func (m *GatewayMethod) ResolveRefund(ctx context.Context, id uuid.UUID, reference string) (*payment.Payment, error) {
	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == payment.StatusRefunded {
		return rec, nil
	}
	if err := refundable(rec); err != nil {
		return rec, err
	}

	release, err := m.locker.Lock(ctx, rec.Reference)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, release, rec.Reference)

	// reload under the lock
	if rec, err = m.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if rec.Status == payment.StatusRefunded {
		return rec, nil
	}
	if err := refundable(rec); err != nil {
		return rec, err
	}

	ref := refundReference(rec, reference)
	o := m.refunds.Lookup(ctx, ref)
	if !o.IsApproved() {
		return rec, o.Err()
	}
	if err := rec.MarkRefunded(ref, o.TransactionID); err != nil {
		return rec, err
	}
	return rec, m.persist(ctx, rec, "payment.refunded", map[string]any{
		"refund_reference":      ref,
		"refund_transaction_id": o.TransactionID,
		"reconciled":            true,
	})
}

// Resolve looks up a payment whose gateway outcome is not known and records
// what the gateway reports. Records with a known outcome are returned as is.
func (m *GatewayMethod) Resolve(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.NeedsReconciliation() {
		return rec, nil
	}
	return m.resolve(ctx, rec.ID, rec.Reference, "manual")
}

func (m *GatewayMethod) resolve(ctx context.Context, id uuid.UUID, reference, source string) (*payment.Payment, error) {
	release, err := m.locker.Lock(ctx, reference)
	if err != nil {
		return nil, err
	}
	defer m.release(ctx, release, reference)

	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.NeedsReconciliation() {
		return rec, nil
	}

	o := m.purchases.Lookup(ctx, rec.Reference)
	m.metrics.RecordReconciliation(source, string(o.Kind))
	if err := m.apply(ctx, rec, o); err != nil {
		return rec, err
	}
	return rec, o.Err()
}

// ResolvePending runs the read-only lookup for up to limit records whose
// outcome has been unknown for at least minAge.
func (m *GatewayMethod) ResolvePending(ctx context.Context, limit int, minAge time.Duration) (ReconcileReport, error) {
	cutoff := time.Now().Add(-minAge)
	pending, err := m.repo.List(ctx, payment.ListFilter{
		Statuses:      []payment.Status{payment.StatusSubmitted, payment.StatusUnknown},
		UpdatedBefore: &cutoff,
		Limit:         limit,
		SortBy:        "updated_at",
		SortOrder:     "asc",
	})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list pending payments: %w", err)
	}

	var (
		mu     sync.Mutex
		report ReconcileReport
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, p := range pending {
		g.Go(func() error {
			rec, err := m.resolve(gCtx, p.ID, p.Reference, "worker")

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if rec == nil {
				report.Skipped++
				if !errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
					m.logger.Error().Err(err).Str("reference", p.Reference).Msg("reconciliation failed")
				}
				return nil
			}
			switch rec.Status {
			case payment.StatusCaptured:
				report.Captured++
			case payment.StatusDeclined:
				report.Declined++
			default:
				report.Unknown++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// apply moves the record to the state the outcome proves and persists it.
// Only Approved and Declined settle a record the gateway may have seen; a
// lookup that proves nothing leaves it unknown.
func (m *GatewayMethod) apply(ctx context.Context, rec *payment.Payment, o payment.Outcome) error {
	if o.Reconciled {
		rec.ReconcileAttempts++
	}

	var err error
	switch {
	case o.Kind == payment.OutcomeApproved:
		err = rec.MarkCaptured(o.TransactionID, o.MaskedCard)
	case o.Kind == payment.OutcomeDeclined:
		err = rec.MarkDeclined(o.Message)
	case o.Kind == payment.OutcomeTransportFailure && gateway.NotSent(o.Cause):
		err = rec.MarkNotSent(o.Message)
	case !o.Reconciled && (o.Kind == payment.OutcomeGatewayError || o.Kind == payment.OutcomeMalformed):
		err = rec.MarkFailed(o.Message)
	case rec.Status != payment.StatusFailed:
		err = rec.MarkUnknown(o.Message)
	}
	if err != nil {
		return err
	}

	data := map[string]any{
		"outcome":    string(o.Kind),
		"message":    o.Message,
		"reconciled": o.Reconciled,
	}
	if o.TransactionID != "" {
		data["transaction_id"] = o.TransactionID
	}
	if len(o.Errors) > 0 {
		data["errors"] = o.Errors
	}
	return m.persist(ctx, rec, "payment."+string(rec.Status), data)
}

// persist writes the record and its event atomically. It ignores caller
// cancellation: the record must follow what the gateway already did.
func (m *GatewayMethod) persist(ctx context.Context, rec *payment.Payment, eventType string, data map[string]any) error {
	ctx = context.WithoutCancel(ctx)
	if data == nil {
		data = map[string]any{}
	}
	data["reference"] = rec.Reference
	return m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.repo.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		return m.repo.AddEvent(txCtx, &payment.PaymentEvent{
			ID:        uuid.New(),
			PaymentID: rec.ID,
			EventType: eventType,
			EventData: data,
		})
	})
}

func (m *GatewayMethod) recordEvent(ctx context.Context, rec *payment.Payment, eventType string, data map[string]any) {
	data["reference"] = rec.Reference
	err := m.repo.AddEvent(context.WithoutCancel(ctx), &payment.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: rec.ID,
		EventType: eventType,
		EventData: data,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("reference", rec.Reference).Str("event", eventType).Msg("failed to record payment event")
	}
}

func (m *GatewayMethod) release(ctx context.Context, release func(context.Context) error, reference string) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn().Err(err).Str("reference", reference).Msg("failed to release reference lock")
	}
}

func refundable(rec *payment.Payment) error {
	if rec.Status != payment.StatusCaptured || rec.GatewayTransactionID == nil {
		return domainErrors.NewDomainError("not_refundable",
			"payment "+rec.Reference+" is "+string(rec.Status), domainErrors.ErrNotRefundable)
	}
	return nil
}

func refundReference(rec *payment.Payment, reference string) string {
	if reference != "" {
		return reference
	}
	return rec.Reference + "-refund"
}

func sameAmount(a, b money.Money) bool {
	return a.Currency() == b.Currency() && a.Amount().Equal(b.Amount())
}

// customerMetadata keeps the fraud-screening fields that are safe to store.
func customerMetadata(c payment.Customer) map[string]any {
	md := make(map[string]any)
	if c.IP != "" {
		md["customer_ip"] = c.IP
	}
	if c.ForwardedFor != "" {
		md["forwarded_for"] = c.ForwardedFor
	}
	if c.Email != "" {
		md["email"] = c.Email
	}
	if c.Phone != "" {
		md["phone"] = c.Phone
	}
	return md
}
