package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
	"github.com/fr0schler/timetracker-realtime/internal/realtime"
	"github.com/fr0schler/timetracker-realtime/internal/transport/http/handlers"
	"github.com/fr0schler/timetracker-realtime/internal/transport/http/middleware"
	"github.com/fr0schler/timetracker-realtime/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Tokens   *usecase.TokenService
	Sessions *usecase.SessionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	Services   ServiceSet
	Gateway    *realtime.Gateway
	Registry   *realtime.Registry
	Membership MembershipChecker
	Metrics    *middleware.HTTPMetrics
	Database   DatabaseChecker
	Cache      CacheChecker
}

// MembershipChecker answers organization membership questions.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, organizationID int64) (bool, error)
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
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.CORS))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Tokens)

	healthHandler := handlers.NewHealthHandler()
	if deps.Database != nil {
		healthHandler.WithReadinessCheck("database", deps.Database.Ping)
	}
	if deps.Cache != nil {
		healthHandler.WithReadinessCheck("redis", deps.Cache.HealthCheck)
	}

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket upgrade opts into its own auth flow so the client gets an
	// application close code instead of an HTTP status.
	r.GET("/ws/organizations/:organization_id", deps.Gateway.Handle)

	realtimeHandler := handlers.NewRealtimeHandler(deps.Registry, deps.Registry, deps.Registry, deps.Membership, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Services.Tokens, deps.Services.Sessions, deps.Logger)
	sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions, deps.Logger)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		authGroup.POST("/logout-all", authMiddleware, authHandler.LogoutAll)

		api.GET("/sessions/count", authMiddleware, authHandler.SessionCount)
		api.GET("/organizations/:organization_id/realtime/stats", authMiddleware, realtimeHandler.Stats)
	}

	internal := r.Group("/internal/v1")
	{
		internal.POST("/organizations/:organization_id/broadcast", realtimeHandler.Broadcast)
		internal.POST("/organizations/:organization_id/users/:user_id/send", realtimeHandler.SendToUser)
		internal.PUT("/sessions/:session_id/snapshot", sessionHandler.UpdateSnapshot)
	}

	return r
}
