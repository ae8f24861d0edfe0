package payment

import (
	"strings"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/google/uuid"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusCaptured  Status = "captured"
	StatusDeclined  Status = "declined"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
	StatusRefunded  Status = "refunded"
)

// Payment is the record of one capture attempt keyed by merchant reference.
// Card data is never stored; only the masked number echoed by the gateway.
type Payment struct {
	ID                   uuid.UUID
	Reference            string
	Amount               money.Money
	Status               Status
	GatewayTransactionID *string
	MaskedCard           *string
	LastError            *string
	RefundReference      *string
	RefundTransactionID  *string
	ReconcileAttempts    int
	Metadata             map[string]any
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
}

// NewPayment creates a pending payment for the given merchant reference.
func NewPayment(reference string, amount money.Money) (*Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, errors.NewValidationError("reference", "is required")
	}
	if !amount.IsSet() {
		return nil, errors.NewValidationError("amount", "is required")
	}

	now := time.Now()
	return &Payment{
		ID:        uuid.New(),
		Reference: reference,
		Amount:    amount,
		Status:    StatusPending,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

var transitions = map[Status][]Status{
	StatusPending: {StatusSubmitted, StatusFailed},
	// Back to pending only when the request never left the process.
	StatusSubmitted: {StatusPending, StatusCaptured, StatusDeclined, StatusFailed, StatusUnknown},
	// Unknown is only left through a lookup that proves the outcome.
	StatusUnknown: {StatusCaptured, StatusDeclined, StatusUnknown},
	// A failed submission may still have landed; a lookup can prove it.
	StatusFailed:   {StatusCaptured, StatusDeclined},
	StatusCaptured: {StatusRefunded},
	StatusDeclined: {},
	StatusRefunded: {},
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	for _, allowed := range transitions[p.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	now := time.Now()
	p.Status = newStatus
	p.UpdatedAt = now

	switch newStatus {
	case StatusCaptured, StatusDeclined, StatusRefunded:
		p.CompletedAt = &now
	}
	return nil
}

func (p *Payment) MarkSubmitted() error {
	if err := p.TransitionTo(StatusSubmitted); err != nil {
		return err
	}
	p.LastError = nil
	return nil
}

// MarkCaptured records the gateway transaction id, which is required for any
// later refund.
func (p *Payment) MarkCaptured(transactionID, maskedCard string) error {
	if transactionID == "" {
		return errors.NewValidationError("transaction_id", "is required to capture")
	}
	if err := p.TransitionTo(StatusCaptured); err != nil {
		return err
	}
	p.GatewayTransactionID = &transactionID
	if maskedCard != "" {
		p.MaskedCard = &maskedCard
	}
	p.LastError = nil
	return nil
}

func (p *Payment) MarkDeclined(message string) error {
	if err := p.TransitionTo(StatusDeclined); err != nil {
		return err
	}
	p.LastError = &message
	return nil
}

func (p *Payment) MarkFailed(message string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.LastError = &message
	return nil
}

// MarkNotSent returns a submitted payment to pending after the request was
// refused before reaching the gateway, so it may be submitted again.
func (p *Payment) MarkNotSent(message string) error {
	if p.Status != StatusSubmitted {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot return "+string(p.Status)+" payment to pending",
			errors.ErrInvalidStateTransition,
		)
	}
	if err := p.TransitionTo(StatusPending); err != nil {
		return err
	}
	p.LastError = &message
	return nil
}

// MarkUnknown records that the gateway outcome could not be determined.
func (p *Payment) MarkUnknown(message string) error {
	if err := p.TransitionTo(StatusUnknown); err != nil {
		return err
	}
	p.LastError = &message
	return nil
}

func (p *Payment) MarkRefunded(refundReference, refundTransactionID string) error {
	if err := p.TransitionTo(StatusRefunded); err != nil {
		return err
	}
	p.RefundReference = &refundReference
	if refundTransactionID != "" {
		p.RefundTransactionID = &refundTransactionID
	}
	return nil
}

// NeedsReconciliation reports whether the gateway may hold an outcome this
// record does not know about.
func (p *Payment) NeedsReconciliation() bool {
	return p.Status == StatusSubmitted || p.Status == StatusUnknown
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusDeclined || p.Status == StatusRefunded
}
