package main

import (
	"context"
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
	"github.com/kursadbilgin/relance-engine/internal/provider"
	"github.com/kursadbilgin/relance-engine/internal/queue"
	"github.com/kursadbilgin/relance-engine/internal/ratelimit"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/service"
	"github.com/kursadbilgin/relance-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required by the reminder worker")
	}
	if cfg.DialerWebhookURL == "" {
		return fmt.Errorf("DIALER_WEBHOOK_URL is required by the reminder worker")
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
	callRepo := repository.NewGormCallRepo(db, busy)
	deliveryRepo := repository.NewGormDeliveryRepo(db, busy)

	checks := map[string]handler.ReadinessCheck{"database": handler.DatabaseCheck(sqlDB)}

	var limiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL, "relance-worker")
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		redisLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.ReminderRatePerSec)
		if err != nil {
			return err
		}
		limiter = redisLimiter
		checks["redis"] = handler.RedisCheck(rdb)
	} else {
		logger.Warn("redis disabled, agent rate limit applies per worker process")
		limiter = ratelimit.NewLocalRateLimiter(cfg.ReminderRatePerSec)
	}

	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, "relance-worker")
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	defer consumer.Close()

	dialer, err := provider.NewDialerProvider(cfg.DialerWebhookURL)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	worker, err := service.NewReminderWorker(callRepo, deliveryRepo, consumer, dialer, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "relance-engine-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, checks)
	handler.RegisterMetricsRoute(app, metrics)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.MetricsPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	logger.Info("relance-engine worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("metricsPort", cfg.MetricsPort),
	)
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("relance-engine worker stopped")
	return nil
}
