package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/config"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/event"
	handler "github.com/thecolossalsparkle/dbms-marrow-sub000/internal/handler/http"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository/postgres"
	rediscache "github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository/redis"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/service"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/migrations"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/breaker"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/health"
	pkgkafka "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/kafka"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "portal"

// App wires together all dependencies and runs the portal service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	recomputes     *pkgkafka.Consumer
	sweeper        *rating.Sweeper
	tracerShutdown func(context.Context) error
	background     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := ConnectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("register pool metrics", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if _, err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	redisClient, err := ConnectRedis(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	kafkaBreaker := breaker.New(breaker.DefaultConfig("kafka-producer"), logger)
	eventProducer := event.NewProducer(producer, kafkaBreaker, logger)

	// Build the dependency graph.
	doctorRepo := postgres.NewDoctorRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)
	ratingRepo := postgres.NewRatingRepository(pool)

	var (
		doctorCache repository.DoctorCache
		invalidator rating.CacheInvalidator
	)
	if ttl := cfg.CacheTTL(); ttl > 0 {
		c := rediscache.NewDoctorCache(redisClient, ttl)
		doctorCache, invalidator = c, c
	}

	aggregator := rating.NewAggregator(ratingRepo, eventProducer, invalidator, rating.Config{
		BatchSize:   cfg.RatingSweepBatchSize,
		Concurrency: cfg.RatingSweepConcurrency,
	}, logger)
	doctorService := service.NewDoctorService(doctorRepo, doctorCache, logger)
	reviewService := service.NewReviewService(reviewRepo, doctorRepo, aggregator, eventProducer, logger)

	// Retried recomputations arrive on their own topic.
	eventConsumer := event.NewConsumer(aggregator, logger)
	idempotency := pkgkafka.NewRedisIdempotencyStore(redisClient, "portal:events:",
		time.Duration(cfg.IdempotencyTTLMins)*time.Minute)
	recomputes := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.KafkaConsumerGroup,
		Topic:     event.TopicRecomputeRequested,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotency, eventConsumer.HandleRecomputeRequested, logger), logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:          ServiceName,
		Doctors:              doctorService,
		Reviews:              reviewService,
		Ratings:              aggregator,
		Health:               healthHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		AdminAllowedCIDRs:    cfg.AdminAllowedCIDRs,
		PprofAllowedCIDRs:    cfg.PprofAllowedCIDRs,
		ReviewRateLimitRPS:   cfg.ReviewRateLimitRPS,
		ReviewRateLimitBurst: cfg.ReviewRateLimitBurst,
		DoctorCacheMaxAge:    60,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		recomputes:     recomputes,
		sweeper:        rating.NewSweeper(aggregator, cfg.SweepInterval(), logger),
		tracerShutdown: tracerShutdown,
	}, nil
}

// ConnectPostgres opens the PostgreSQL pool described by cfg.
func ConnectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	return pool, nil
}

// ConnectRedis opens and pings the Redis client described by cfg.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Run starts the HTTP server, the recompute consumer and the reconciliation
// sweeper, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	go func() {
		if err := a.recomputes.Start(ctx); err != nil {
			errCh <- fmt.Errorf("recompute consumer: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		a.sweeper.Run(sweepCtx)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopSweep()
		_ = a.Shutdown()
		return err
	}

	stopSweep()
	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Background sweeper
// 4. Kafka consumer and producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Wait for an in-progress sweep to observe cancellation.
	a.background.Wait()

	// 4. Close Kafka consumer and producer.
	if err := a.recomputes.Close(); err != nil {
		a.logger.Error("recompute consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Redis and PostgreSQL.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
