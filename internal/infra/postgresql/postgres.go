package postgresql

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 5 * time.Second

	slowQueryThreshold = 200 * time.Millisecond
)

// NewPostgres opens a pooled connection whose session runs in UTC, so timestamps
// read back from timestamptz columns never pick up the server's zone.
func NewPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(withUTCTimeZone(dsn)), &gorm.Config{
		Logger:                 gormLogger(),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// withUTCTimeZone adds a UTC session time zone to dsn unless it already names one.
// Both URL and keyword/value forms are accepted.
func withUTCTimeZone(dsn string) string {
	dsn = strings.TrimSpace(dsn)

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		query := u.Query()
		for key := range query {
			if strings.EqualFold(key, "timezone") {
				return dsn
			}
		}
		query.Set("TimeZone", "UTC")
		u.RawQuery = query.Encode()
		return u.String()
	}

	for _, field := range strings.Fields(dsn) {
		key, _, _ := strings.Cut(field, "=")
		if strings.EqualFold(key, "timezone") {
			return dsn
		}
	}
	return dsn + " TimeZone=UTC"
}

// gormLogger reports slow queries and real errors. Lookups that find nothing are
// expected and stay quiet.
func gormLogger() logger.Interface {
	return logger.New(log.New(os.Stderr, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
