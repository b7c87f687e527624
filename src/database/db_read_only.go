package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tagexceptions/src/model"
)

// OpenReadOnly opens the replica used for audit/history reads. The database
// user should have SELECT-only permissions. When no replica is configured the
// main handle is returned unchanged.
func OpenReadOnly(config Config, main *gorm.DB) (*gorm.DB, error) {
	if config.DatabaseURLReadOnly == "" {
		logrus.Debug("[ReadOnlyDB] no replica configured, using MainDB for reads")
		return main, nil
	}

	db, err := open(config, config.DatabaseURLReadOnly, true)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&model.TaggingException{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to access tagging_exceptions on ReadOnlyDB: %w", err)
	}

	logrus.WithField("count", count).Info("[ReadOnlyDB] tagging_exceptions reachable")

	return db, nil
}
