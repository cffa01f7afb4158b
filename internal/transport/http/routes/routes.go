package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/infra/config"
	"github.com/campuslink/campus-iam/internal/transport/http/handlers"
	"github.com/campuslink/campus-iam/internal/transport/http/middleware"
	"github.com/campuslink/campus-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Login        *usecase.LoginService
	Registration *usecase.RegistrationService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, err
	}
	r.Use(metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokenTTL := int(deps.Config.JWT.SessionTokenTTL.Seconds())

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		// A coarse per-IP guard on the whole auth surface. The flow
		// services enforce the fine-grained per-operation windows.
		if deps.RateLimiter != nil {
			authGroup.Use(deps.RateLimiter.RateLimit(middleware.RateLimitRule{
				Name:       "auth_http",
				Limit:      100,
				Window:     time.Minute,
				Identifier: middleware.ClientIPIdentifier(),
			}))
		}

		authHandler := handlers.NewAuthHandler(deps.Services.Login, tokenTTL)
		authHandler.RegisterRoutes(authGroup, nil, nil, nil)

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, tokenTTL)
		registrationHandler.RegisterRoutes(authGroup, nil, nil, nil)
	}

	return r, nil
}
