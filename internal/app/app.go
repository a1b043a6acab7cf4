package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wanderly/identity/internal/auth"
	"github.com/wanderly/identity/internal/config"
	"github.com/wanderly/identity/internal/domain"
	"github.com/wanderly/identity/internal/event"
	handler "github.com/wanderly/identity/internal/handler/http"
	"github.com/wanderly/identity/internal/hasher"
	"github.com/wanderly/identity/internal/mailer"
	"github.com/wanderly/identity/internal/metrics"
	"github.com/wanderly/identity/internal/ratelimit"
	"github.com/wanderly/identity/internal/repository"
	"github.com/wanderly/identity/internal/repository/memory"
	"github.com/wanderly/identity/internal/repository/postgres"
	"github.com/wanderly/identity/internal/service"
	"github.com/wanderly/identity/internal/session"
	"github.com/wanderly/identity/internal/verification"
	"github.com/wanderly/identity/migrations"
	"github.com/wanderly/identity/pkg/database"
	"github.com/wanderly/identity/pkg/health"
	"github.com/wanderly/identity/pkg/httpclient"
	pkgkafka "github.com/wanderly/identity/pkg/kafka"
	"github.com/wanderly/identity/pkg/middleware"
	"github.com/wanderly/identity/pkg/tracing"
)

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig())
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler(3 * time.Second)

	store, err := a.openStore(ctx, reg, healthHandler)
	if err != nil {
		return err
	}

	// Hashing, signing and one-time codes.
	h, err := hasher.New(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}
	signer, err := auth.NewSigner(cfg.SignerConfig())
	if err != nil {
		return fmt.Errorf("create token signer: %w", err)
	}
	codeCfg := cfg.CodeConfig()

	dispatcher, err := a.newMailer(reg)
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher(reg, healthHandler)
	if err != nil {
		return err
	}

	authMetrics, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register auth metrics: %w", err)
	}

	identityService, err := service.NewIdentityService(service.Dependencies{
		Store:      store,
		Hasher:     h,
		Signer:     signer,
		Sessions:   session.NewStore(h, nil),
		VerifyCode: verification.NewManager(domain.PurposeEmailVerification, h, codeCfg),
		ResetCode:  verification.NewManager(domain.PurposePasswordReset, h, codeCfg),
		Mailer:     dispatcher,
		Events:     publisher,
		Metrics:    authMetrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create identity service: %w", err)
	}

	limiter, err := a.newLimiter(ctx, healthHandler)
	if err != nil {
		return err
	}

	httpMetrics, err := middleware.NewHTTPMetrics(reg, config.ServiceName)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Service:     identityService,
		Health:      healthHandler,
		Logger:      logger,
		ServiceName: config.ServiceName,
		CORS:        middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins),
		Cookies: handler.CookieConfig{
			Domain:     cfg.CookieDomain,
			Secure:     cfg.CookieSecure,
			AccessTTL:  cfg.JWTAccessTTL,
			RefreshTTL: cfg.JWTRefreshTTL,
		},
		Limiter:         limiter,
		LimitRecorder:   authMetrics,
		HTTPMetrics:     httpMetrics,
		MetricsGatherer: reg,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return nil
}

// openStore connects to PostgreSQL and migrates it, or returns an in-memory
// store for local development.
func (a *App) openStore(ctx context.Context, reg prometheus.Registerer, hh *health.Handler) (repository.Transactor, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	pool, err := database.Connect(ctx, cfg.PostgresConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(reg, pool, config.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	hh.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewDB(pool), nil
}

func (a *App) newMailer(reg prometheus.Registerer) (mailer.Dispatcher, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.MailDriver == config.MailDriverLog {
		logger.Info("emails are written to the log")
		return mailer.NewLogMailer(logger), nil
	}

	breakerMetrics, err := httpclient.NewBreakerMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register breaker metrics: %w", err)
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg.MailHTTP),
		httpclient.DefaultCircuitBreakerConfig("mail-api"),
		breakerMetrics,
		logger,
	)
	m, err := mailer.NewAPIMailer(client, cfg.MailAPIConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create mail API client: %w", err)
	}
	logger.Info("emails are sent through the mail API", slog.String("base_url", cfg.MailAPIBaseURL))
	return m, nil
}

func (a *App) newPublisher(reg prometheus.Registerer, hh *health.Handler) (event.Publisher, error) {
	cfg, logger := a.cfg, a.logger

	if !cfg.KafkaEnabled {
		logger.Info("kafka disabled, domain events are dropped")
		return event.Noop{}, nil
	}

	producerMetrics, err := pkgkafka.NewProducerMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register kafka metrics: %w", err)
	}
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), producerMetrics, logger)
	a.producer = producer
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	hh.Register("kafka", producer.Ping)
	return event.NewProducer(producer, logger), nil
}

func (a *App) newLimiter(ctx context.Context, hh *health.Handler) (ratelimit.Limiter, error) {
	cfg, logger := a.cfg, a.logger

	if !cfg.RateLimitEnabled {
		logger.Warn("rate limiting disabled")
		return nil, nil
	}

	rule := cfg.RateLimitRule()
	if cfg.RedisHost == "" {
		logger.Info("rate limiting per instance, REDIS_HOST not set")
		limiter, err := ratelimit.NewMemoryLimiter(rule)
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		return limiter, nil
	}

	client, err := database.NewRedisClient(ctx, cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))

	hh.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	limiter, err := ratelimit.NewRedisLimiter(client, "identity:ratelimit", rule)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	return limiter, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP drain, tracer
// flush, then the Kafka producer, Redis and the PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases the connections opened so far. It is also used
// when NewApp fails halfway.
func (a *App) closeResources() []error {
	var errs []error
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}
