package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"AttendGate/internal/model"
	"AttendGate/pkg/logger"
)

// Migrate 运行数据库迁移，创建服务端全部表
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.EnrolledProfile{},
		&model.OfficeSetting{},
		&model.AttendanceRecord{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
