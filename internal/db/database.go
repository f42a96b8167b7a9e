package db

import (
	"fmt"
	"time"

	"yls-backend/internal/config"
	"yls-backend/internal/metrics"
	"yls-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the schema
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	var err error
	DB, err = gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logrus.Info("✅ Database connected successfully")

	if err := DB.AutoMigrate(
		&models.RelayAuthorization{},
		&models.RelayedTransaction{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	metrics.DBConnectionStatus.Set(1)
	logrus.Info("✅ Database schema migrated successfully")
	return nil
}
