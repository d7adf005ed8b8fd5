package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/config"
)

// Config holds all configuration for the portal service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"PORTAL_HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"portal"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"portal_secret"`
	PostgresDB   string `env:"PORTAL_DB_NAME" envDefault:"portal_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Doctor profile cache TTL in seconds. 0 disables the cache.
	DoctorCacheTTL int `env:"DOCTOR_CACHE_TTL_SECONDS" envDefault:"300"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"portal-rating"`
	IdempotencyTTLMins int      `env:"KAFKA_IDEMPOTENCY_TTL_MINUTES" envDefault:"1440"`

	// Rating reconciliation sweep
	RatingSweepIntervalMins int `env:"RATING_SWEEP_INTERVAL_MINUTES" envDefault:"60"`
	RatingSweepBatchSize    int `env:"RATING_SWEEP_BATCH_SIZE" envDefault:"500"`
	RatingSweepConcurrency  int `env:"RATING_SWEEP_CONCURRENCY" envDefault:"4"`

	// Per-patient token bucket on review writes. 0 disables it.
	ReviewRateLimitRPS   float64 `env:"REVIEW_RATE_LIMIT_RPS" envDefault:"1"`
	ReviewRateLimitBurst int     `env:"REVIEW_RATE_LIMIT_BURST" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof and admin endpoints (IP allowlists in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
	AdminAllowedCIDRs []string `env:"ADMIN_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load portal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.DoctorCacheTTL < 0 {
		return fmt.Errorf("DOCTOR_CACHE_TTL_SECONDS must be >= 0, got %d", c.DoctorCacheTTL)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.RatingSweepIntervalMins < 0 {
		return fmt.Errorf("RATING_SWEEP_INTERVAL_MINUTES must be >= 0, got %d", c.RatingSweepIntervalMins)
	}
	if c.RatingSweepBatchSize <= 0 {
		return fmt.Errorf("RATING_SWEEP_BATCH_SIZE must be > 0, got %d", c.RatingSweepBatchSize)
	}
	if c.RatingSweepConcurrency <= 0 {
		return fmt.Errorf("RATING_SWEEP_CONCURRENCY must be > 0, got %d", c.RatingSweepConcurrency)
	}
	if c.ReviewRateLimitRPS < 0 {
		return fmt.Errorf("REVIEW_RATE_LIMIT_RPS must be >= 0, got %f", c.ReviewRateLimitRPS)
	}
	if c.ReviewRateLimitRPS > 0 && c.ReviewRateLimitBurst <= 0 {
		return fmt.Errorf("REVIEW_RATE_LIMIT_BURST must be > 0 when rate limiting is enabled")
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// SweepInterval is the reconciliation period. Zero disables the sweeper.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RatingSweepIntervalMins) * time.Minute
}

// CacheTTL is the doctor profile cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.DoctorCacheTTL) * time.Second
}
