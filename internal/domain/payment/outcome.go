package payment

import (
	"strings"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
)

// OutcomeKind classifies the result of a gateway operation.
type OutcomeKind string

const (
	OutcomeApproved         OutcomeKind = "approved"
	OutcomeDeclined         OutcomeKind = "declined"
	OutcomeGatewayError     OutcomeKind = "gateway_error"
	OutcomeMalformed        OutcomeKind = "malformed"
	OutcomeTransportFailure OutcomeKind = "transport_failure"
	OutcomeUnresolved       OutcomeKind = "unresolved"
)

// Outcome is the value the processors return to their caller. Only Approved
// carries a gateway transaction id that may be used for a later refund.
type Outcome struct {
	Kind          OutcomeKind
	TransactionID string
	Message       string
	MaskedCard    string
	Errors        []string
	Cause         error
	// Reconciled is set when the outcome came from a reference lookup
	// rather than from the original submission.
	Reconciled bool
}

func Approved(transactionID, message string) Outcome {
	return Outcome{Kind: OutcomeApproved, TransactionID: transactionID, Message: message}
}

func Declined(message string) Outcome {
	return Outcome{Kind: OutcomeDeclined, Message: message}
}

func GatewayError(errs []string) Outcome {
	return Outcome{Kind: OutcomeGatewayError, Errors: errs, Message: strings.Join(errs, ", ")}
}

func Malformed(cause error) Outcome {
	return Outcome{Kind: OutcomeMalformed, Cause: cause, Message: errorText(cause)}
}

func TransportFailure(cause error) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Cause: cause, Message: errorText(cause)}
}

func Unresolved(cause error) Outcome {
	return Outcome{Kind: OutcomeUnresolved, Cause: cause, Message: errorText(cause)}
}

func (o Outcome) IsApproved() bool { return o.Kind == OutcomeApproved }

// Err converts a non-approved outcome into the caller-visible error.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeApproved:
		return nil
	case OutcomeDeclined:
		return domainErrors.NewDomainError("declined", "unable to process payment: "+o.Message, domainErrors.ErrDeclined)
	case OutcomeGatewayError:
		return domainErrors.NewDomainError("gateway_error",
			"there has been an error processing your payment: "+strings.Join(o.Errors, ", "),
			domainErrors.ErrGatewayError)
	case OutcomeMalformed:
		return domainErrors.NewDomainError("malformed_response", "gateway returned an unreadable response",
			causeOr(o.Cause, domainErrors.ErrMalformedResponse))
	case OutcomeTransportFailure:
		return domainErrors.NewDomainError("transport_failure", "gateway could not be reached",
			causeOr(o.Cause, domainErrors.ErrTransportFailure))
	case OutcomeUnresolved:
		return domainErrors.NewDomainError("payment_status_unknown",
			"payment status unknown, do not assume success or failure", domainErrors.ErrUnresolved)
	default:
		return domainErrors.NewDomainError("unknown_outcome", "unrecognised outcome "+string(o.Kind), nil)
	}
}

func causeOr(cause, fallback error) error {
	if cause == nil {
		return fallback
	}
	return cause
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
