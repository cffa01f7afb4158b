package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/infra/config"
	"github.com/campuslink/campus-iam/internal/infra/database"
	kafkainfra "github.com/campuslink/campus-iam/internal/infra/kafka"
	"github.com/campuslink/campus-iam/internal/infra/logger"
	"github.com/campuslink/campus-iam/internal/infra/notify"
	redisinfra "github.com/campuslink/campus-iam/internal/infra/redis"
	"github.com/campuslink/campus-iam/internal/infra/security"
	postgresrepo "github.com/campuslink/campus-iam/internal/repository/postgres"
	redisrepo "github.com/campuslink/campus-iam/internal/repository/redis"
	"github.com/campuslink/campus-iam/internal/transport/http/middleware"
	"github.com/campuslink/campus-iam/internal/transport/http/routes"
	"github.com/campuslink/campus-iam/internal/usecase"
)

// Application owns the wired object graph and the HTTP server lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New constructs the full dependency graph.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	tokenIssuer := security.NewTokenIssuer(keyProvider, cfg.App.Name, cfg.JWT.SessionTokenTTL)

	repos := postgresrepo.NewRepositories(pool)

	challengeStore := redisrepo.NewChallengeStore(redisClient.Client(), cfg.Redis.ChallengePrefix)

	rateLimitWindow := cfg.RateLimit.RequestWindow
	if rateLimitWindow <= 0 {
		rateLimitWindow = 15 * time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	var producer *kafkainfra.Producer
	var auditSink port.AuditSink
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub audit sink", zap.Error(err))
			auditSink = kafkainfra.NewStubAuditSink(log)
		} else {
			auditSink = kafkainfra.NewAuditPublisher(producer, cfg.App, log)
			log.Info("kafka audit sink initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub audit sink")
		auditSink = kafkainfra.NewStubAuditSink(log)
	}

	notifier := notify.NewLoggingNotifier(log, cfg.App.Env != "production" && cfg.OTP.DevLogCodes)

	loginService := usecase.NewLoginService(repos.Accounts, challengeStore, rateLimitStore, notifier, auditSink, tokenIssuer, cfg, log)
	registrationService := usecase.NewRegistrationService(repos.Accounts, challengeStore, rateLimitStore, notifier, auditSink, tokenIssuer, cfg, log)

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	engine, err := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Login:        loginService,
			Registration: registrationService,
		},
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init routes: %w", err)
	}

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting campus IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
