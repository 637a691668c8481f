package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"AttendGate/config"
	"AttendGate/pkg/logger"
	redisotel "AttendGate/pkg/redis"
)

// Open 创建 Redis 客户端并探活，返回的句柄由调用方负责关闭
func Open(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if cfg.OTelEndpoint != "" {
		if err := redisotel.InitRedisMetrics(otel.Meter(cfg.ServiceName)); err != nil {
			logger.Logger.Warn("Failed to init redis metrics", zap.Error(err))
		}
		client.AddHook(redisotel.NewTracingHook(cfg.ServiceName, cfg.RedisDB))
	}

	logger.Logger.Info("Redis initialized successfully", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// Key 拼接带前缀的键名，空片段会被跳过
func Key(parts ...string) string {
	prefix := config.Cfg.RedisPrefix
	if prefix == "" {
		prefix = "atg"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
