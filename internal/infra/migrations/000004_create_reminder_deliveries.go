package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"gorm.io/gorm"
)

func createReminderDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_reminder_deliveries",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ReminderDeliveryModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReminderDeliveryModel{})
		},
	}
}
