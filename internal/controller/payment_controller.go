package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	appPayment "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/cassiomorais/cardgateway/internal/domain/money"
	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// PaymentMethod is the payment capability the controller drives.
type PaymentMethod interface {
	Capture(ctx context.Context, req payment.PurchaseRequest) (*payment.Payment, error)
	Refund(ctx context.Context, cmd appPayment.RefundCommand) (*payment.Payment, error)
	Resolve(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	ResolveRefund(ctx context.Context, id uuid.UUID, reference string) (*payment.Payment, error)
}

// AuditTrail reads the lifecycle events recorded for a merchant reference.
type AuditTrail interface {
	Trail(ctx context.Context, reference string) ([]audit.Event, error)
}

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	method      PaymentMethod
	paymentRepo payment.Repository
	trail       AuditTrail
}

// NewPaymentController creates a new PaymentController. trail may be nil.
func NewPaymentController(method PaymentMethod, paymentRepo payment.Repository, trail AuditTrail) *PaymentController {
	return &PaymentController{
		method:      method,
		paymentRepo: paymentRepo,
		trail:       trail,
	}
}

// Purchase handles POST /api/v1/purchases
func (h *PaymentController) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	purchase, err := req.ToDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.method.Capture(r.Context(), purchase)
	if err != nil {
		writePaymentError(w, err, p)
		return
	}
	writeJSON(w, http.StatusCreated, FromPayment(p))
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	payments, err := h.paymentRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func listFilter(r *http.Request) (payment.ListFilter, error) {
	q := r.URL.Query()
	filter := payment.ListFilter{
		Limit:     defaultListLimit,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			status := payment.Status(strings.TrimSpace(s))
			if !knownStatus(status) {
				return filter, validationError("status", "unknown status "+string(status))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return filter, validationError("limit", "must be a positive integer")
		}
		filter.Limit = min(n, maxListLimit)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, validationError("offset", "must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func knownStatus(s payment.Status) bool {
	switch s {
	case payment.StatusPending, payment.StatusSubmitted, payment.StatusCaptured, payment.StatusDeclined,
		payment.StatusFailed, payment.StatusUnknown, payment.StatusRefunded:
		return true
	}
	return false
}

// RefundPayment handles POST /api/v1/payments/{id}/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RefundRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cmd := appPayment.RefundCommand{PaymentID: id, Reference: req.Reference}
	if req.Amount != nil {
		p, err := h.paymentRepo.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if cmd.Amount, err = money.New(*req.Amount, p.Amount.Currency()); err != nil {
			writeError(w, err)
			return
		}
	}

	operator, _ := middleware.GetOperator(r.Context())
	log.Info().
		Str("payment_id", id.String()).
		Str("operator", operator).
		Str("reason", req.Reason).
		Msg("refund requested")

	p, err := h.method.Refund(r.Context(), cmd)
	if err != nil {
		writePaymentError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ReconcilePayment handles POST /api/v1/payments/{id}/reconcile
func (h *PaymentController) ReconcilePayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.method.Resolve(r.Context(), id)
	if err != nil {
		writePaymentError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ReconcileRefund handles POST /api/v1/payments/{id}/refund/reconcile
func (h *PaymentController) ReconcileRefund(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RefundReconcileRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.method.ResolveRefund(r.Context(), id, req.Reference)
	if err != nil {
		writePaymentError(w, err, p)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// GetEvents handles GET /api/v1/payments/{id}/events
func (h *PaymentController) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.paymentRepo.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	events, err := h.paymentRepo.GetEvents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAuditTrail handles GET /api/v1/payments/{id}/audit
func (h *PaymentController) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.paymentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.trail == nil {
		writeJSON(w, http.StatusOK, []AuditEventResponse{})
		return
	}

	events, err := h.trail.Trail(r.Context(), p.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.RefundReference != nil {
		refundEvents, err := h.trail.Trail(r.Context(), *p.RefundReference)
		if err != nil {
			writeError(w, err)
			return
		}
		events = append(events, refundEvents...)
	}
	resp := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromAuditEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
