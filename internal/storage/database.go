package storage

import (
	"fmt"

	"talentchat/backend/internal/models"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the chat tables.
// Supported drivers are postgres and sqlite.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("database initialized", zap.String("driver", driver))
	}
	return db, nil
}

// Migrate creates or updates every table the chat service touches.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Message{},
		&models.RiskRecord{},
		&models.Booking{},
		&models.EventRequest{},
		&models.TalentProfile{},
	)
}
