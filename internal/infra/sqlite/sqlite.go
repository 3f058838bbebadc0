package sqlite

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// connParams puts the database in WAL mode, waits on locks instead of failing
// immediately and takes the write lock when a transaction begins.
const connParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

const slowQueryThreshold = 200 * time.Millisecond

func NewSQLite(path string) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	db, err := gorm.Open(sqlite.Open(path+sep+connParams), &gorm.Config{
		Logger:                 gormLogger(),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// A single connection serialises writers; statements inside a transaction
	// must use the transaction handle or they wait on themselves.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
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
