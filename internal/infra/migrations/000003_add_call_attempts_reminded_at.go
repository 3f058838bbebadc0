package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"gorm.io/gorm"
)

func addCallAttemptsRemindedAtColumn() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_call_attempts_reminded_at",
		Migrate: func(tx *gorm.DB) error {
			if !tx.Migrator().HasColumn(&repository.CallAttemptModel{}, "RemindedAt") {
				if err := tx.Migrator().AddColumn(&repository.CallAttemptModel{}, "RemindedAt"); err != nil {
					return err
				}
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_call_attempts_due ON call_attempts (next_call_at) WHERE done_at IS NULL AND reminded_at IS NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec(`DROP INDEX IF EXISTS idx_call_attempts_due`).Error; err != nil {
				return err
			}
			return tx.Migrator().DropColumn(&repository.CallAttemptModel{}, "RemindedAt")
		},
	}
}
