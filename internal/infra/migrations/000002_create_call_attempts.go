package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"gorm.io/gorm"
)

func createCallAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_call_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CallAttemptModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_call_attempts_pending ON call_attempts (next_call_at, id) WHERE done_at IS NULL AND next_call_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_call_attempts_closed ON call_attempts (done_at, id) WHERE done_at IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CallAttemptModel{})
		},
	}
}
