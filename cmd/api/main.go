package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/relance-engine/internal/config"
	"github.com/kursadbilgin/relance-engine/internal/handler"
	"github.com/kursadbilgin/relance-engine/internal/infra/database"
	infraredis "github.com/kursadbilgin/relance-engine/internal/infra/redis"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/queue"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"github.com/kursadbilgin/relance-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("api", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clock, err := temporal.LoadClock(cfg.Timezone)
	if err != nil {
		return err
	}

	db, err := database.OpenAndMigrate(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	busy := repository.WithBusyRetry(repository.BusyRetry{
		Attempts: cfg.StoreBusyRetries,
		Backoff:  cfg.StoreBusyBackoff,
	})
	leadRepo := repository.NewGormLeadRepo(db, busy)
	callRepo := repository.NewGormCallRepo(db, busy)
	deliveryRepo := repository.NewGormDeliveryRepo(db, busy)

	metrics := observability.NewMetrics()
	checks := map[string]handler.ReadinessCheck{"database": handler.DatabaseCheck(sqlDB)}

	var cache service.DashboardCache
	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL, "relance-api")
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		dashboardCache, err := infraredis.NewDashboardCache(rdb, cfg.DashboardCacheTTL)
		if err != nil {
			return err
		}
		cache = dashboardCache
		checks["redis"] = handler.RedisCheck(rdb)
	} else {
		logger.Info("redis disabled, dashboard served without cache")
	}

	leads, err := service.NewLeadService(leadRepo, callRepo, cache, clock, logger)
	if err != nil {
		return err
	}
	followUps, err := service.NewFollowUpService(callRepo, deliveryRepo, cache, logger)
	if err != nil {
		return err
	}
	followUps.SetMetrics(metrics)
	dashboard, err := service.NewDashboardService(leadRepo, cache, clock, logger)
	if err != nil {
		return err
	}
	dashboard.SetMetrics(metrics)

	scanErrs := make(chan error, 1)
	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, "relance-api")
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		defer rabbit.Close()

		publisher := queue.NewRabbitMQPublisher(rabbit)
		defer publisher.Close()

		scanner, err := service.NewDueScanner(callRepo, publisher, cfg.DueScanInterval, cfg.DueScanLimit, cfg.ReminderLease, logger)
		if err != nil {
			return err
		}
		scanner.SetMetrics(metrics)

		go func() {
			if err := scanner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				scanErrs <- err
			}
		}()
	} else {
		logger.Info("rabbitmq disabled, due follow-up reminders are not published")
	}

	app := fiber.New(fiber.Config{
		AppName:      "relance-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, checks)
	handler.RegisterMetricsRoute(app, metrics)
	if err := handler.RegisterLeadRoutes(app, leads); err != nil {
		return err
	}
	if err := handler.RegisterFollowUpRoutes(app, followUps, clock); err != nil {
		return err
	}
	if err := handler.RegisterDashboardRoutes(app, dashboard); err != nil {
		return err
	}

	listenErrs := make(chan error, 1)
	go func() {
		logger.Info("relance-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.String("database", cfg.DatabaseDriver),
			zap.String("timezone", clock.Location().String()),
		)
		listenErrs <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-listenErrs:
		return fmt.Errorf("http server stopped: %w", err)
	case err := <-scanErrs:
		logger.Error("due scanner stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}

	logger.Info("relance-engine api stopped")
	return nil
}
