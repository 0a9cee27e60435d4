package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fr0schler/timetracker-realtime/internal/core/port"
	"github.com/fr0schler/timetracker-realtime/internal/infra/config"
	"github.com/fr0schler/timetracker-realtime/internal/infra/database"
	kafkainfra "github.com/fr0schler/timetracker-realtime/internal/infra/kafka"
	"github.com/fr0schler/timetracker-realtime/internal/infra/logger"
	redisinfra "github.com/fr0schler/timetracker-realtime/internal/infra/redis"
	"github.com/fr0schler/timetracker-realtime/internal/realtime"
	postgresrepo "github.com/fr0schler/timetracker-realtime/internal/repository/postgres"
	redisrepo "github.com/fr0schler/timetracker-realtime/internal/repository/redis"
	"github.com/fr0schler/timetracker-realtime/internal/transport/http/middleware"
	"github.com/fr0schler/timetracker-realtime/internal/transport/http/routes"
	"github.com/fr0schler/timetracker-realtime/internal/usecase"
)

type Application struct {
	cfg      *config.Config
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	sessions *usecase.SessionService
	consumer *kafkainfra.ConsumerGroup
}

func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	// Redis is a soft dependency: without it the service still authenticates
	// statelessly, it only loses revocation and multi-device logout.
	var sessionStore port.SessionStore
	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, session features degraded", zap.Error(err))
		redisClient = nil
	} else {
		sessionStore = redisrepo.NewSessionRepository(redisClient.Client(), redisrepo.SessionConfig{
			SessionPrefix:      cfg.Redis.SessionPrefix,
			UserSessionsPrefix: cfg.Redis.UserSessionsPrefix,
			IdleTTL:            cfg.Session.IdleTTL,
		})
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = producer
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	memberships := postgresrepo.NewMembershipRepository(pool)

	tokenService := usecase.NewTokenService(cfg.JWT, sessionStore, log)
	sessionService := usecase.NewSessionService(sessionStore, log)

	registryMetrics := realtime.NewMetrics(prometheus.DefaultRegisterer)
	registry := realtime.NewRegistry(log, registryMetrics, eventPublisher, cfg.Realtime.TypingClearDelay)
	gateway := realtime.NewGateway(tokenService, memberships, registry, log, cfg.Realtime)

	var consumer *kafkainfra.ConsumerGroup
	if len(cfg.Kafka.Brokers) > 0 {
		handler := kafkainfra.NewDomainEventConsumer(registry, log)
		consumer, err = kafkainfra.NewConsumerGroup(cfg.Kafka, handler, log)
		if err != nil {
			log.Warn("failed to init kafka consumer, domain event intake disabled", zap.Error(err))
			consumer = nil
		}
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	deps := routes.Dependencies{
		Config:     cfg,
		Logger:     log,
		Gateway:    gateway,
		Registry:   registry,
		Membership: memberships,
		Metrics:    httpMetrics,
		Database:   pool,
		Services: routes.ServiceSet{
			Tokens:   tokenService,
			Sessions: sessionService,
		},
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine := routes.Register(deps)

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		sessions: sessionService,
		consumer: consumer,
	}, nil
}

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

	go a.sessions.RunCleanup(ctx, a.cfg.Session.CleanupInterval)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
		defer func() {
			_ = a.consumer.Close()
		}()
	}

	// WriteTimeout stays unset: WebSocket connections outlive any sane
	// request deadline.
	srv := &http.Server{
		Addr:              a.cfg.App.Addr(),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting realtime gateway",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := a.cfg.App.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
