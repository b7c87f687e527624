package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// ActiveExceptionIndex is the partial unique index that allows a single
// active exception per resource. Postgres and SQLite both accept it.
const ActiveExceptionIndex = "ux_tagging_exceptions_active_resource"

func createActiveExceptionIndex(db *gorm.DB) error {
	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON tagging_exceptions (resource_id) WHERE status = 'active'",
		ActiveExceptionIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", ActiveExceptionIndex, err)
	}
	return nil
}

// backfillExpiredAt stamps expired_at on rows that were expired before the
// column existed, using expires_at as the best available transition time.
func backfillExpiredAt(db *gorm.DB) error {
	return db.Exec(
		"UPDATE tagging_exceptions SET expired_at = expires_at WHERE status = 'expired' AND expired_at IS NULL",
	).Error
}
