package bootstrap

import (
	"context"
	"fmt"
	"os"

	paymentApp "github.com/cassiomorais/cardgateway/internal/application/payment"
	"github.com/cassiomorais/cardgateway/internal/domain/audit"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cardgateway/internal/infrastructure/redis"
	"github.com/cassiomorais/cardgateway/internal/repository/postgres"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the process-wide dependencies shared by the API and the
// reconciler.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	PaymentRepo *postgres.PaymentRepository
	AuditStream *infraRedis.StreamAuditSink
	Gateway     *gateway.Client
	Method      *paymentApp.GatewayMethod

	shutdownTracer observability.ShutdownFunc
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	shutdownTracer, err := observability.InitTracer(cfg.Observability, serviceName, cfg.InstanceID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	} else if cfg.Observability.EnableTracing {
		logger.Info().Msg("Tracing enabled")
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	gw, err := gateway.NewClient(cfg.Gateway,
		gateway.WithBreaker(cfg.Breaker),
		gateway.WithObserver(metrics),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	logger.Info().
		Str("endpoint", cfg.Gateway.Endpoint()).
		Bool("test_mode", cfg.Gateway.TestMode).
		Msg("Gateway client ready")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	paymentRepo := postgres.NewPaymentRepository(pool)
	stream := infraRedis.NewStreamAuditSink(redisClient, cfg.Redis.AuditStream, cfg.Redis.AuditStreamMaxLen, logger)
	sink := audit.Fanout{observability.NewLogAuditSink(logger), stream}

	lookup := retry.Config{
		MaxAttempts:  cfg.Reconciliation.LookupAttempts,
		InitialDelay: cfg.Reconciliation.LookupDelay,
		MaxDelay:     cfg.Reconciliation.LookupMaxDelay,
	}
	purchases := paymentApp.NewTransactionProcessor(gw, lookup, sink, metrics, logger)
	refunds := paymentApp.NewRefundProcessor(gw, lookup, sink, metrics, logger)
	method := paymentApp.NewGatewayMethod(
		paymentRepo,
		postgres.NewTxManager(pool),
		infraRedis.NewReferenceLocker(redisClient, cfg.Redis.LockTTL),
		purchases,
		refunds,
		metrics,
		logger,
		paymentApp.WithConcurrency(cfg.Reconciliation.Concurrency),
	)

	return &App{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Redis:          redisClient,
		Metrics:        metrics,
		PaymentRepo:    paymentRepo,
		AuditStream:    stream,
		Gateway:        gw,
		Method:         method,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Close flushes pending spans and releases connections.
func (a *App) Close(ctx context.Context) {
	if err := a.shutdownTracer(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	a.Redis.Close()
	a.Pool.Close()
}
