package gateway

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/rs/zerolog"
)

// defaultCustomerIP is sent when the caller has no client address; the
// gateway requires the field.
const defaultCustomerIP = "127.0.0.1"

var holderEscaper = strings.NewReplacer("&", "&amp;")

type AddressPayload struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

// PurchasePayload is the wire body of POST /purchases. It carries the raw
// card number and CVV; log it only through MarshalZerologObject.
type PurchasePayload struct {
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       string          `json:"reference"`
	CardHolder      string          `json:"card_holder"`
	CardNumber      string          `json:"card_number"`
	CardExpiry      string          `json:"card_expiry"`
	CVV             string          `json:"cvv"`
	CustomerIP      string          `json:"customer_ip"`
	ForwardedFor    string          `json:"forwarded_for,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Email           string          `json:"email,omitempty"`
	BillingAddress  *AddressPayload `json:"billing_address,omitempty"`
	ShippingAddress *AddressPayload `json:"shipping_address,omitempty"`
	Test            bool            `json:"test,omitempty"`
}

// MarshalZerologObject logs the payload with card data masked.
func (p PurchasePayload) MarshalZerologObject(e *zerolog.Event) {
	e.Str("reference", p.Reference).
		Int64("amount", p.Amount).
		Str("currency", p.Currency).
		Str("card_number", payment.MaskPAN(p.CardNumber)).
		Str("card_expiry", p.CardExpiry).
		Str("customer_ip", p.CustomerIP).
		Bool("test", p.Test)
}

// String masks the card number so %v formatting never prints it.
func (p PurchasePayload) String() string {
	return fmt.Sprintf("purchase %s %d %s card %s", p.Reference, p.Amount, p.Currency, payment.MaskPAN(p.CardNumber))
}

// RefundPayload is the wire body of POST /refunds.
type RefundPayload struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
	Test          bool   `json:"test,omitempty"`
}

func (p RefundPayload) MarshalZerologObject(e *zerolog.Event) {
	e.Str("reference", p.Reference).
		Str("transaction_id", p.TransactionID).
		Int64("amount", p.Amount).
		Bool("test", p.Test)
}

// BuildPurchase maps a validated purchase request to the gateway schema.
func BuildPurchase(req payment.PurchaseRequest, testMode bool) (PurchasePayload, error) {
	if err := req.Validate(); err != nil {
		return PurchasePayload{}, err
	}
	amount, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		return PurchasePayload{}, err
	}

	ip := strings.TrimSpace(req.Customer.IP)
	if ip == "" {
		ip = defaultCustomerIP
	}

	return PurchasePayload{
		Amount:          amount,
		Currency:        req.Amount.Currency(),
		Reference:       req.Reference,
		CardHolder:      holderEscaper.Replace(req.Card.Holder),
		CardNumber:      req.Card.Number,
		CardExpiry:      req.Card.Expiry(),
		CVV:             req.Card.CVV,
		CustomerIP:      ip,
		ForwardedFor:    req.Customer.ForwardedFor,
		Phone:           req.Customer.Phone,
		Email:           req.Customer.Email,
		BillingAddress:  addressPayload(req.Customer.BillingAddress),
		ShippingAddress: addressPayload(req.Customer.ShippingAddress),
		Test:            testMode,
	}, nil
}

// BuildRefund maps a validated refund request to the gateway schema.
func BuildRefund(req payment.RefundRequest, testMode bool) (RefundPayload, error) {
	if err := req.Validate(); err != nil {
		return RefundPayload{}, err
	}
	amount, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		return RefundPayload{}, err
	}
	return RefundPayload{
		TransactionID: req.TransactionID,
		Amount:        amount,
		Reference:     req.Reference,
		Test:          testMode,
	}, nil
}

func addressPayload(a *payment.Address) *AddressPayload {
	if a == nil {
		return nil
	}
	return &AddressPayload{
		Street:   a.Street,
		City:     a.City,
		State:    a.State,
		Postcode: a.Postcode,
		Country:  a.Country,
	}
}
