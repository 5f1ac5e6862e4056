package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/MediaCatalog/pkg/breaker"
	"github.com/utafrali/MediaCatalog/pkg/database"
	"github.com/utafrali/MediaCatalog/pkg/health"
	pkgkafka "github.com/utafrali/MediaCatalog/pkg/kafka"
	"github.com/utafrali/MediaCatalog/pkg/middleware"
	"github.com/utafrali/MediaCatalog/pkg/tracing"
	"github.com/utafrali/MediaCatalog/services/account/internal/auth"
	"github.com/utafrali/MediaCatalog/services/account/internal/config"
	"github.com/utafrali/MediaCatalog/services/account/internal/event"
	handler "github.com/utafrali/MediaCatalog/services/account/internal/handler/http"
	"github.com/utafrali/MediaCatalog/services/account/internal/notifier"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
	"github.com/utafrali/MediaCatalog/services/account/internal/repository/postgres"
	"github.com/utafrali/MediaCatalog/services/account/internal/service"
	"github.com/utafrali/MediaCatalog/services/account/migrations"
)

const serviceName = "account"

// App wires together all dependencies and runs the account service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	recovery       *service.RecoveryService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	sweeper        sync.WaitGroup
}

// teardown releases resources in reverse order of acquisition.
type teardown []func()

func (t *teardown) add(release func()) { *t = append(*t, release) }

func (t teardown) run() {
	for i := len(t) - 1; i >= 0; i-- {
		t[i]()
	}
}

// NewApp creates a new application instance, initializing all dependencies.
// On error everything acquired so far is released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var undo teardown
	defer func() {
		if err != nil {
			undo.run()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	undo.add(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer scancel()
		_ = tracerShutdown(sctx)
	})

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	undo.add(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err = database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQuery > 0 {
		database.SetSlowQueryLogging(cfg.SlowQuery, logger)
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	undo.add(func() { _ = producer.Close() })
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	events := event.NewProducer(producer, logger)

	// Redis backs the per-email rate limiter.
	var (
		redisClient *redis.Client
		limiter     service.RateLimiter
	)
	if cfg.RateLimitEnabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		undo.add(func() { _ = redisClient.Close() })
		limiter = ratelimit.New(ratelimit.NewRedisStore(redisClient), cfg.RateLimitRules(), logger)
		logger.Info("rate limiting enabled", slog.String("redis", cfg.Redis().Addr()))
	}

	resetNotifier, err := newNotifier(cfg, events, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	// Build the dependency graph.
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	userRepo := postgres.NewUserRepository(pool)
	resetRepo := postgres.NewPasswordResetRepository(pool)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(pool)

	authOpts := []service.AuthOption{service.WithAuthEvents(events)}
	recoveryOpts := []service.RecoveryOption{service.WithRecoveryEvents(events)}
	if limiter != nil {
		authOpts = append(authOpts, service.WithAuthRateLimiter(limiter))
		recoveryOpts = append(recoveryOpts, service.WithRecoveryRateLimiter(limiter))
	}
	authService := service.NewAuthService(userRepo, refreshTokenRepo, hasher, tokens, logger, authOpts...)
	recoveryService := service.NewRecoveryService(
		userRepo, resetRepo, hasher, auth.NewOTPGenerator(cfg.OTPLength), resetNotifier,
		service.RecoveryConfig{CodeTTL: cfg.OTPTTL, ConcealUnknownEmail: cfg.ResetConcealUnknownEmail},
		logger, recoveryOpts...,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	kafkaCheck := healthHandler.RegisterNonCritical
	if cfg.Notifier == config.NotifierKafka {
		kafkaCheck = healthHandler.RegisterCritical
	}
	kafkaCheck("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	clientLimiter := middleware.NewClientLimiter(cfg.ClientLimit(), logger)
	router := handler.NewRouter(authService, recoveryService, healthHandler, logger, cfg.CORS(),
		handler.WithClientRateLimit(clientLimiter))

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
		recovery:       recoveryService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newNotifier builds the reset code delivery backend named by cfg.Notifier.
// Remote backends run behind a circuit breaker.
func newNotifier(cfg *config.Config, events notifier.ResetEventPublisher, logger *slog.Logger) (notifier.Notifier, error) {
	var next notifier.Notifier
	switch cfg.Notifier {
	case config.NotifierLog:
		logger.Warn("reset codes are not delivered: NOTIFIER=log")
		return notifier.NewLogNotifier(logger), nil
	case config.NotifierKafka:
		next = notifier.NewKafkaNotifier(events)
	case config.NotifierSMTP:
		smtp, err := notifier.NewSMTPNotifier(cfg.SMTP())
		if err != nil {
			return nil, fmt.Errorf("smtp notifier: %w", err)
		}
		next = smtp
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}

	bcfg := breaker.DefaultConfig("reset-notifier-" + cfg.Notifier)
	bcfg.IsFailure = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return notifier.NewGuarded(next, breaker.New(bcfg, logger)), nil
}

// Run starts the HTTP server and the reset sweeper, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	a.sweeper.Add(1)
	go func() {
		defer a.sweeper.Done()
		a.recovery.RunSweeper(sweepCtx, a.cfg.ResetSweepInterval)
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopSweeper()
	a.sweeper.Wait()

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
