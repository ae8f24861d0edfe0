package gateway

import (
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
)

const genericGatewayError = "gateway reported an unsuccessful request"

// Interpret classifies the result of a Post or Get. It accepts the call's
// return values directly: Interpret(client.Post(ctx, path, payload)).
//
// The envelope flag is checked before the transaction flag; an envelope
// success with a transaction failure is a decline, not an approval.
func Interpret(res *Response, err error) payment.Outcome {
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return payment.TransportFailure(err)
		}
		if errors.Is(err, domainErrors.ErrMalformedResponse) {
			return payment.Malformed(err)
		}
		return payment.Malformed(fmt.Errorf("%w: %v", domainErrors.ErrMalformedResponse, err))
	}
	if res == nil {
		return payment.Malformed(domainErrors.ErrMalformedResponse)
	}

	if !res.EnvelopeSuccessful() {
		errs := nonEmpty(res.Errors)
		if len(errs) == 0 {
			msg := genericGatewayError
			if res.HTTPStatus != 0 && !isSuccessStatus(res.HTTPStatus) {
				msg = fmt.Sprintf("%s (HTTP %d)", genericGatewayError, res.HTTPStatus)
			}
			errs = []string{msg}
		}
		return payment.GatewayError(errs)
	}

	// An approval without a transaction id cannot back a refund.
	if res.Result == nil {
		return payment.Malformed(&MalformedResponseError{
			Kind: MalformedUnknown,
			Err:  errors.New("successful envelope without a response object"),
		})
	}

	if !res.Result.Successful {
		o := payment.Declined(res.Result.Message)
		o.TransactionID = res.Result.ID
		o.MaskedCard = res.Result.CardNumber
		return o
	}

	if res.Result.ID == "" {
		return payment.Malformed(&MalformedResponseError{
			Kind: MalformedUnknown,
			Err:  errors.New("approved transaction without an id"),
		})
	}

	o := payment.Approved(res.Result.ID, res.Result.Message)
	o.MaskedCard = res.Result.CardNumber
	return o
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
