package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"AttendGate/pkg/logger"
	"AttendGate/storage/database"
	redisstore "AttendGate/storage/redis"
)

// Close 优雅关闭所有存储连接
// 关闭顺序：MQ -> Redis -> Database
// 先停止收发消息，最后关闭数据库，确保写入完成
func (h *Handles) Close() {
	if h == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	if h.MQ != nil {
		if err := h.MQ.Close(ctx); err != nil {
			logger.Logger.Error("Failed to close message queue", zap.Error(err))
		} else {
			logger.Logger.Info("Message queue closed successfully")
		}
	}

	if h.Redis != nil {
		if err := redisstore.Close(h.Redis); err != nil {
			logger.Logger.Error("Failed to close Redis connection", zap.Error(err))
		} else {
			logger.Logger.Info("Redis connection closed successfully")
		}
	}

	if h.DB != nil {
		if err := database.Close(ctx, h.DB); err != nil {
			logger.Logger.Error("Failed to close database connection", zap.Error(err))
		} else {
			logger.Logger.Info("Database connection closed successfully")
		}
	}

	logger.Logger.Info("All storage connections closed")
}
