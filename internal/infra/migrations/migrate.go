package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies every pending migration. Statements stay within the SQL shared
// by PostgreSQL and SQLite.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createLeadsTable(),
		createCallAttemptsTable(),
		addCallAttemptsRemindedAtColumn(),
		createReminderDeliveriesTable(),
	})

	return m.Migrate()
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
