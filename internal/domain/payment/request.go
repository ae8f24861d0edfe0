package payment

import (
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
)

// CardDetails is sensitive: it lives only for the duration of a single
// purchase call. Its String method prints the masked form so it never leaks
// through %v formatting.
type CardDetails struct {
	Holder      string
	Number      string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
}

// Expiry returns the expiry in MM/YYYY form.
func (c CardDetails) Expiry() string {
	return fmt.Sprintf("%02d/%04d", c.ExpiryMonth, c.ExpiryYear)
}

// Masked returns the card number with all but the last four digits hidden.
func (c CardDetails) Masked() string {
	return MaskPAN(c.Number)
}

func (c CardDetails) String() string {
	return "card " + c.Masked()
}

func (c CardDetails) validate() []error {
	var errs []error
	if strings.TrimSpace(c.Holder) == "" {
		errs = append(errs, domainErrors.NewValidationError("card_holder", "is required"))
	}
	if strings.TrimSpace(c.Number) == "" {
		errs = append(errs, domainErrors.NewValidationError("card_number", "is required"))
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		errs = append(errs, domainErrors.NewValidationError("card_expiry", "month must be 01..12"))
	}
	if c.ExpiryYear < 1000 || c.ExpiryYear > 9999 {
		errs = append(errs, domainErrors.NewValidationError("card_expiry", "year must have 4 digits"))
	}
	if strings.TrimSpace(c.CVV) == "" {
		errs = append(errs, domainErrors.NewValidationError("cvv", "is required"))
	}
	return errs
}

// MaskPAN keeps the last four digits of a card number and masks the rest.
func MaskPAN(pan string) string {
	digits := make([]byte, 0, len(pan))
	for i := 0; i < len(pan); i++ {
		if pan[i] >= '0' && pan[i] <= '9' {
			digits = append(digits, pan[i])
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("X", len(digits))
	}
	return strings.Repeat("X", len(digits)-4) + string(digits[len(digits)-4:])
}

// Address is a billing or shipping address forwarded for fraud screening.
type Address struct {
	Street   string
	City     string
	State    string
	Postcode string
	Country  string
}

// Customer carries optional fraud-screening metadata.
type Customer struct {
	IP              string
	ForwardedFor    string
	Phone           string
	Email           string
	BillingAddress  *Address
	ShippingAddress *Address
}

// PurchaseRequest is a single logical purchase. Reference must stay the same
// across retries of the same purchase; reconciliation looks it up by reference.
type PurchaseRequest struct {
	Amount    money.Money
	Reference string
	Card      CardDetails
	Customer  Customer
}

// Validate checks every required field and returns all violations joined.
func (r PurchaseRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Reference) == "" {
		errs = append(errs, domainErrors.NewValidationError("reference", "is required"))
	}
	if !r.Amount.IsSet() {
		errs = append(errs, domainErrors.NewValidationError("amount", "is required"))
	}
	errs = append(errs, r.Card.validate()...)
	return errors.Join(errs...)
}

// MaxMinorUnits is the largest amount a payment record holds: NUMERIC(19,4)
// leaves fifteen integer digits.
const MaxMinorUnits int64 = 99_999_999_999_999_999

// ValidateChargeAmount checks that amount is worth at least one minor unit on
// the wire and fits a payment record.
func ValidateChargeAmount(amount money.Money) error {
	units, err := money.ToMinorUnits(amount)
	if err != nil {
		return err
	}
	if units < 1 {
		return domainErrors.NewValidationError("amount", "must be at least 0.01")
	}
	if units > MaxMinorUnits {
		return domainErrors.NewValidationError("amount", "exceeds the largest supported amount")
	}
	return nil
}

// RefundRequest refunds part or all of a prior approved purchase.
type RefundRequest struct {
	TransactionID string
	Amount        money.Money
	Reference     string
}

// Validate checks the refund invariants: positive amount, non-empty
// transaction id and reference.
func (r RefundRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.TransactionID) == "" {
		errs = append(errs, domainErrors.NewValidationError("transaction_id", "is required"))
	}
	if strings.TrimSpace(r.Reference) == "" {
		errs = append(errs, domainErrors.NewValidationError("reference", "is required"))
	}
	if !r.Amount.IsSet() || !r.Amount.IsPositive() {
		errs = append(errs, domainErrors.NewValidationError("amount", "must be greater than 0"))
	}
	return errors.Join(errs...)
}
