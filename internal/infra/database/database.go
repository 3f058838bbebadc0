// Package database opens the configured storage engine.
package database

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/relance-engine/internal/infra/migrations"
	"github.com/kursadbilgin/relance-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/relance-engine/internal/infra/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "":
		return postgresql.NewPostgres(dsn)
	case DriverSQLite:
		return sqlite.NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenAndMigrate opens the database and applies pending migrations.
func OpenAndMigrate(driver, dsn string) (*gorm.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Migrate(db); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	return db, nil
}
