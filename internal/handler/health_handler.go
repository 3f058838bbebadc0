package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck pings one dependency.
type ReadinessCheck func(ctx context.Context) error

func DatabaseCheck(sqlDB *sql.DB) ReadinessCheck {
	return func(ctx context.Context) error {
		return sqlDB.PingContext(ctx)
	}
}

func RedisCheck(rdb *redis.Client) ReadinessCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// RegisterHealthRoutes mounts /livez and /readyz. Dependencies that are not
// configured are simply left out of checks.
func RegisterHealthRoutes(app fiber.Router, checks map[string]ReadinessCheck) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks))
}

func RegisterMetricsRoute(app fiber.Router, metrics *observability.Metrics) {
	if metrics == nil {
		return
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks map[string]ReadinessCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := make(fiber.Map, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "down"
				ready = false
				continue
			}
			results[name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
