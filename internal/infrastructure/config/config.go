package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SandboxBaseURL    = "https://gateway.sandbox.fatzebra.com.au"
	ProductionBaseURL = "https://gateway.fatzebra.com.au"

	// GatewayTimeout is fixed; it is not configurable per request.
	GatewayTimeout = 30 * time.Second
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Breaker        BreakerConfig        `mapstructure:"breaker"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Auth           AuthConfig           `mapstructure:"auth"`
	InstanceID     string               `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per minute per client IP on the API.
	RateLimit int        `mapstructure:"rate_limit"`
	CORS      CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	AuditStream       string        `mapstructure:"audit_stream"`
	AuditStreamMaxLen int64         `mapstructure:"audit_stream_max_len"`
}

// GatewayConfig is the read-only, process-wide gateway configuration. It is
// safe to share across concurrent calls.
type GatewayConfig struct {
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
	Sandbox  bool   `mapstructure:"sandbox"`
	TestMode bool   `mapstructure:"test_mode"`
	// BaseURL overrides the sandbox/production endpoint when set.
	BaseURL          string `mapstructure:"base_url"`
	APIVersion       string `mapstructure:"api_version"`
	UserAgentVersion string `mapstructure:"user_agent_version"`
}

// Endpoint returns the gateway base URL without a trailing slash.
func (g GatewayConfig) Endpoint() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	if g.Sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

// Validate checks the credentials required to construct a gateway client.
func (g GatewayConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(g.Username) == "" {
		errs = append(errs, fmt.Errorf("gateway.username is required"))
	}
	if strings.TrimSpace(g.Token) == "" {
		errs = append(errs, fmt.Errorf("gateway.token is required"))
	}
	if g.APIVersion == "" {
		errs = append(errs, fmt.Errorf("gateway.api_version is required"))
	}
	if g.BaseURL != "" {
		u, err := url.Parse(g.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("gateway.base_url must be an absolute URL, got %q", g.BaseURL))
		}
	}
	return errors.Join(errs...)
}

type ReconciliationConfig struct {
	LookupAttempts uint          `mapstructure:"lookup_attempts"`
	LookupDelay    time.Duration `mapstructure:"lookup_delay"`
	LookupMaxDelay time.Duration `mapstructure:"lookup_max_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	// MinAge keeps the worker away from records a live request may still be
	// resolving.
	MinAge      time.Duration `mapstructure:"min_age"`
	Concurrency int           `mapstructure:"concurrency"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, e.g. CARDGATEWAY_GATEWAY_TOKEN
	v.SetEnvPrefix("CARDGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cardgateway")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= GatewayTimeout {
		errs = append(errs, fmt.Errorf("server.write_timeout must exceed the %s gateway timeout", GatewayTimeout))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Redis.LockTTL <= GatewayTimeout {
		errs = append(errs, fmt.Errorf("redis.lock_ttl must exceed the %s gateway timeout", GatewayTimeout))
	}
	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Reconciliation.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("reconciliation.batch_size must be positive"))
	}
	if c.Reconciliation.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("reconciliation.poll_interval must be positive"))
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, fmt.Errorf("breaker.failure_ratio must be in (0, 1], got %v", c.Breaker.FailureRatio))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Gateway.Sandbox || c.Gateway.TestMode {
			errs = append(errs, fmt.Errorf("gateway.sandbox and gateway.test_mode must be off in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "75s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cardgateway")
	v.SetDefault("database.database", "cardgateway")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.lock_ttl", "90s")
	v.SetDefault("redis.audit_stream", "payments:audit")
	v.SetDefault("redis.audit_stream_max_len", 100000)

	// Gateway defaults. Empty values are registered so AutomaticEnv can bind
	// them on Unmarshal.
	v.SetDefault("gateway.username", "")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.sandbox", true)
	v.SetDefault("gateway.test_mode", true)
	v.SetDefault("gateway.api_version", "1.0")
	v.SetDefault("gateway.user_agent_version", "1.0.0")

	// Reconciliation defaults
	v.SetDefault("reconciliation.lookup_attempts", 3)
	v.SetDefault("reconciliation.lookup_delay", "500ms")
	v.SetDefault("reconciliation.lookup_max_delay", "5s")
	v.SetDefault("reconciliation.poll_interval", "1m")
	v.SetDefault("reconciliation.batch_size", 20)
	v.SetDefault("reconciliation.min_age", "2m")
	v.SetDefault("reconciliation.concurrency", 4)

	// Circuit breaker defaults
	v.SetDefault("breaker.max_requests", 3)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.failure_ratio", 0.6)
	v.SetDefault("breaker.min_requests", 10)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")

	// Instance ID
	v.SetDefault("instance_id", "cardgateway-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
