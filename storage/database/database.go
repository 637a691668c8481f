package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"AttendGate/config"
	dbotel "AttendGate/pkg/database"
	"AttendGate/pkg/logger"
)

// Open 连接 PostgreSQL、挂载 OTel 插件并执行迁移，返回的句柄由调用方负责关闭
func Open(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), gormCfg)
	if err != nil {
		logger.Logger.Error("Failed to open database", zap.String("host", cfg.PostgreSQLHost), zap.Error(err))
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}
	configureConnectionPool(sqlDB, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		logger.Logger.Error("Failed to ping database", zap.Error(err))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.OTelEndpoint != "" {
		if err := dbotel.InitDatabaseMetrics(otel.Meter(cfg.ServiceName)); err != nil {
			logger.Logger.Warn("Failed to init database metrics", zap.Error(err))
		}
		pluginCfg := dbotel.DefaultPluginConfig()
		pluginCfg.ServiceName = cfg.ServiceName
		if err := dbotel.WithOTELPlugin(db, pluginCfg); err != nil {
			logger.Logger.Warn("Failed to register database tracing plugin", zap.Error(err))
		}
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Logger.Info("Database initialized successfully")
	return db, nil
}

func Close(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB, cfg *config.Config) {
	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}
