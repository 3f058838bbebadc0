package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config is read from the environment. Empty RabbitMQ, Redis or dialer URLs disable
// the matching integration.
type Config struct {
	DatabaseDriver     string        `env:"DATABASE_DRIVER,default=postgres"`
	DatabaseDSN        string        `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string        `env:"RABBITMQ_URL"`
	RedisURL           string        `env:"REDIS_URL"`
	DialerWebhookURL   string        `env:"DIALER_WEBHOOK_URL"`
	APIPort            int           `env:"API_PORT,default=8080"`
	MetricsPort        int           `env:"METRICS_PORT,default=9090"`
	LogLevel           string        `env:"LOG_LEVEL,default=info"`
	Timezone           string        `env:"TIMEZONE,default=Europe/Paris"`
	StoreBusyRetries   int           `env:"STORE_BUSY_RETRIES,default=5"`
	StoreBusyBackoff   time.Duration `env:"STORE_BUSY_BACKOFF,default=50ms"`
	DashboardCacheTTL  time.Duration `env:"DASHBOARD_CACHE_TTL,default=30s"`
	DueScanInterval    time.Duration `env:"DUE_SCAN_INTERVAL,default=15s"`
	DueScanLimit       int           `env:"DUE_SCAN_LIMIT,default=100"`
	ReminderLease      time.Duration `env:"REMINDER_LEASE,default=5m"`
	ReminderRatePerSec int           `env:"REMINDER_RATE_PER_SEC,default=5"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY,default=4"`
	RosterFile         string        `env:"ROSTER_FILE,default=configs/roster.yaml"`
}

// Load reads an optional .env file from the working directory, then the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("failed to load config: DATABASE_DSN is empty")
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("failed to load config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	return &cfg, nil
}
