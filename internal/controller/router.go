package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/cardgateway/internal/domain/payment"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/cardgateway/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	PaymentMethod PaymentMethod
	PaymentRepo   payment.Repository
	AuditTrail    AuditTrail
	HealthChecks  []HealthCheck
	Metrics       *observability.Metrics
	// MetricsHandler serves /metrics; nil means the default registry.
	MetricsHandler http.Handler
	Server         config.ServerConfig
	JWTSecret      string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout(deps.Server)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks...)
	paymentH := NewPaymentController(deps.PaymentMethod, deps.PaymentRepo, deps.AuditTrail)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.SecurityHeaders())
		r.Use(customMW.RateLimit(deps.Server.RateLimit))

		r.Post("/purchases", paymentH.Purchase)
		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/{id}", paymentH.GetPayment)
		r.Get("/payments/{id}/events", paymentH.GetEvents)
		r.Get("/payments/{id}/audit", paymentH.GetAuditTrail)
		r.Post("/payments/{id}/reconcile", paymentH.ReconcilePayment)

		// Refunds move money back and are operator-only.
		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireOperator(deps.JWTSecret))
			r.Post("/payments/{id}/refund", paymentH.RefundPayment)
			r.Post("/payments/{id}/refund/reconcile", paymentH.ReconcileRefund)
		})
	})

	return r
}

// requestTimeout bounds a request by the server write timeout. A purchase
// whose caller context expires still finishes its reconciliation.
func requestTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.WriteTimeout > 0 {
		return cfg.WriteTimeout
	}
	return 90 * time.Second
}
