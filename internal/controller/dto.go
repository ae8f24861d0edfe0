package controller

import (
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (decimal amounts, validation tags).
// Controllers convert them to domain requests before calling the payment method.

// PurchaseRequest holds the input for a card purchase.
type PurchaseRequest struct {
	Reference string           `json:"reference" validate:"required,max=255"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency" validate:"required,len=3,alpha"`
	Card      CardRequest      `json:"card"`
	Customer  *CustomerRequest `json:"customer,omitempty"`
}

// CardRequest carries raw card data. It is never logged or echoed back.
type CardRequest struct {
	Holder      string `json:"holder" validate:"required,max=255"`
	Number      string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" validate:"required,min=1000,max=9999"`
	CVV         string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

// CustomerRequest carries optional fraud-screening data.
type CustomerRequest struct {
	IP              string          `json:"ip,omitempty" validate:"omitempty,ip"`
	ForwardedFor    string          `json:"forwarded_for,omitempty"`
	Phone           string          `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email           string          `json:"email,omitempty" validate:"omitempty,email"`
	BillingAddress  *AddressRequest `json:"billing_address,omitempty"`
	ShippingAddress *AddressRequest `json:"shipping_address,omitempty"`
}

type AddressRequest struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country" validate:"omitempty,len=2"`
}

// RefundRequest holds the input for refunding a captured payment. A missing
// amount refunds the full captured amount.
type RefundRequest struct {
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reference string           `json:"reference,omitempty" validate:"omitempty,max=255"`
	Reason    string           `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RefundReconcileRequest names the refund reference to look up. Empty means
// the default reference derived from the payment.
type RefundReconcileRequest struct {
	Reference string `json:"reference,omitempty" validate:"omitempty,max=255"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment record in API responses.
type PaymentResponse struct {
	ID                   string          `json:"id"`
	Reference            string          `json:"reference"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty"`
	MaskedCard           *string         `json:"masked_card,omitempty"`
	LastError            *string         `json:"last_error,omitempty"`
	RefundReference      *string         `json:"refund_reference,omitempty"`
	RefundTransactionID  *string         `json:"refund_transaction_id,omitempty"`
	ReconcileAttempts    int             `json:"reconcile_attempts"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// EventResponse is one persisted payment event.
type EventResponse struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditEventResponse is one lifecycle transition from the audit stream.
type AuditEventResponse struct {
	Operation     string   `json:"operation"`
	State         string   `json:"state"`
	TransactionID string   `json:"transaction_id,omitempty"`
	Message       string   `json:"message,omitempty"`
	MaskedCard    string   `json:"masked_card,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ErrorResponse represents an error response. Payment is set when the
// request reached the gateway and the record reflects the outcome.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

// --- Conversion helpers ---

// ToDomain converts the request into a purchase request.
func (r *PurchaseRequest) ToDomain() (payment.PurchaseRequest, error) {
	amount, err := money.New(r.Amount, r.Currency)
	if err != nil {
		return payment.PurchaseRequest{}, err
	}
	if err := payment.ValidateChargeAmount(amount); err != nil {
		return payment.PurchaseRequest{}, err
	}

	req := payment.PurchaseRequest{
		Amount:    amount,
		Reference: r.Reference,
		Card: payment.CardDetails{
			Holder:      r.Card.Holder,
			Number:      r.Card.Number,
			ExpiryMonth: r.Card.ExpiryMonth,
			ExpiryYear:  r.Card.ExpiryYear,
			CVV:         r.Card.CVV,
		},
	}
	if c := r.Customer; c != nil {
		req.Customer = payment.Customer{
			IP:              c.IP,
			ForwardedFor:    c.ForwardedFor,
			Phone:           c.Phone,
			Email:           c.Email,
			BillingAddress:  c.BillingAddress.toDomain(),
			ShippingAddress: c.ShippingAddress.toDomain(),
		}
	}
	return req, nil
}

func (a *AddressRequest) toDomain() *payment.Address {
	if a == nil {
		return nil
	}
	return &payment.Address{
		Street:   a.Street,
		City:     a.City,
		State:    a.State,
		Postcode: a.Postcode,
		Country:  a.Country,
	}
}

// FromPayment converts a payment record to an API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:                   p.ID.String(),
		Reference:            p.Reference,
		Amount:               p.Amount.Amount(),
		Currency:             p.Amount.Currency(),
		Status:               string(p.Status),
		GatewayTransactionID: p.GatewayTransactionID,
		MaskedCard:           p.MaskedCard,
		LastError:            p.LastError,
		RefundReference:      p.RefundReference,
		RefundTransactionID:  p.RefundTransactionID,
		ReconcileAttempts:    p.ReconcileAttempts,
		Metadata:             p.Metadata,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
		CompletedAt:          p.CompletedAt,
	}
}

func FromEvent(e *payment.PaymentEvent) *EventResponse {
	return &EventResponse{
		ID:        e.ID.String(),
		EventType: e.EventType,
		EventData: e.EventData,
		CreatedAt: e.CreatedAt,
	}
}

func FromAuditEvent(e audit.Event) AuditEventResponse {
	return AuditEventResponse{
		Operation:     string(e.Operation),
		State:         string(e.State),
		TransactionID: e.TransactionID,
		Message:       e.Message,
		MaskedCard:    e.MaskedCard,
		Errors:        e.Errors,
	}
}
