package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tagexceptions/src/database/migrations"
	"tagexceptions/src/model"
)

// OpenMain opens the read/write database and brings its schema up to date.
// It should be called once at startup and the handle passed to the repositories.
func OpenMain(config Config) (*gorm.DB, error) {
	db, err := open(config, config.DatabaseURLMain, false)
	if err != nil {
		return nil, err
	}

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logrus.Info("[database] MainDB migrations completed")

	return db, nil
}

// Migrate runs AutoMigrate for every write-side model followed by the data
// migrations that AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.TaggingException{},
		&model.ViolationCorrelation{},
		&model.SystemError{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	return nil
}

func open(config Config, dsn string, prepareStmt bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    prepareStmt,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}

	maxOpen, maxIdle := config.MaxOpenConns, config.MaxIdleConns
	if config.Driver == DriverSQLite {
		// an in-memory database lives and dies with its single connection
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	return db, nil
}
