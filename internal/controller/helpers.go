package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Gateway outcomes arrive as *DomainError carrying the outcome code; the
// sentinels cover everything raised before or around the gateway call.
var outcomeStatus = map[string]int{
	"declined":               http.StatusPaymentRequired,
	"gateway_error":          http.StatusBadGateway,
	"malformed_response":     http.StatusBadGateway,
	"transport_failure":      http.StatusServiceUnavailable,
	"payment_status_unknown": http.StatusAccepted,
}

var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrReferenceNotFound, http.StatusNotFound, "reference_not_found"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domainErrors.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{domainErrors.ErrDuplicateReference, http.StatusConflict, "duplicate_reference"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "payment_in_progress"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrNotRefundable, http.StatusConflict, "not_refundable"},
	{domainErrors.ErrDeclined, http.StatusPaymentRequired, "declined"},
	{domainErrors.ErrUnresolved, http.StatusAccepted, "payment_status_unknown"},
	{domainErrors.ErrGatewayError, http.StatusBadGateway, "gateway_error"},
	{domainErrors.ErrMalformedResponse, http.StatusBadGateway, "malformed_response"},
	{domainErrors.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{domainErrors.ErrTransportFailure, http.StatusServiceUnavailable, "transport_failure"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writePaymentError(w, err, nil)
}

// writePaymentError writes err and, when the gateway was involved, the
// payment record as it stands after the outcome.
func writePaymentError(w http.ResponseWriter, err error, p *payment.Payment) {
	status, resp := classifyError(err)
	if status != http.StatusInternalServerError {
		resp.Payment = FromPayment(p)
	}
	writeJSON(w, status, resp)
}

func classifyError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		return http.StatusBadRequest, resp
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		if status, ok := outcomeStatus[domainErr.Code]; ok {
			resp.Code = domainErr.Code
			// transport_failure wraps the breaker rejection too
			if errors.Is(err, domainErrors.ErrGatewayUnavailable) {
				resp.Code = "gateway_unavailable"
			}
			return status, resp
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			return m.status, resp
		}
	}

	if domainErr != nil {
		resp.Code = domainErr.Code
		return http.StatusUnprocessableEntity, resp
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	return http.StatusInternalServerError, resp
}

func validationError(field, msg string) error {
	return domainErrors.NewValidationError(field, msg)
}

func decodeAndValidate(r *http.Request, dst any) error {
	return decode(r, dst, false)
}

// decodeOptional accepts an empty body and leaves dst at its zero value.
func decodeOptional(r *http.Request, dst any) error {
	return decode(r, dst, true)
}

func decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return validationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return validationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return validationError("body", err.Error())
	}
	return nil
}

func paymentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, validationError("id", "must be a valid payment id")
	}
	return id, nil
}
