package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/batch"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/scheduler"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	control, err := persistence.NewPostgres(ctx, cfg.Postgres.ControlDSN, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect control postgres", zap.Error(err))
	}
	defer control.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, control.PoolHandle(), "migrations/control", logger); err != nil {
			logger.Fatal("failed to run control migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	tenantPools := persistence.NewTenantPools(cfg.Postgres, logger)
	defer tenantPools.CloseAll()

	tenantRepo := repository.NewTenantRepository(control.PoolHandle())
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	publisher := service.NewNotificationPublisher(dispatcher, redis, cfg.Redis.Channel, logger)
	worker.StartNotificationPublisher(publisher)

	notifier := service.NewNotificationWriter(dispatcher, metrics, logger)
	ruleService := service.NewRuleService(cfg.Batch.MatchLimit, logger)
	resolver := service.NewResolver(logger)
	percent := service.NewPercentCalculator()

	sched := scheduler.New(scheduler.ConfigFrom(cfg.Scheduler), scheduler.Dependencies{
		Tenants:  tenantRepo,
		Stores:   tenantPools,
		Percent:  percent,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	runner := batch.NewRunner(batch.ConfigFrom(cfg.Batch), batch.Dependencies{
		Stores:     tenantPools,
		Rules:      ruleService,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	runner.Start(ctx)
	defer runner.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, control, redis),
		Scheduler:      handlers.NewSchedulerHandler(sched),
		Rules:          handlers.NewRulesHandler(tenantRepo, tenantPools, ruleService, runner),
		SLA:            handlers.NewSLAHandler(tenantRepo, tenantPools, resolver, percent),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
