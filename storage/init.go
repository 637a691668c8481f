package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"AttendGate/config"
	"AttendGate/storage/database"
	"AttendGate/storage/mq"
	redisstore "AttendGate/storage/redis"
)

// Handles 进程级存储句柄，启动时打开，退出时统一关闭
type Handles struct {
	DB    *gorm.DB
	Redis *redis.Client
	MQ    *mq.Client
}

// Components 需要打开的存储组件
type Components struct {
	DB    bool
	Redis bool
	MQ    bool
}

// Open 按需打开存储组件，任一失败时关闭已打开的部分
func Open(ctx context.Context, cfg *config.Config, want Components) (*Handles, error) {
	h := &Handles{}

	if want.DB {
		db, err := database.Open(ctx, cfg)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.DB = db
	}

	if want.Redis {
		client, err := redisstore.Open(ctx, cfg)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.Redis = client
	}

	if want.MQ {
		client, err := mq.Dial(cfg.GetRabbitMQURL(), cfg.ServiceName)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.MQ = client
		if err := client.DeclareTopology(); err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to declare rabbitmq topology: %w", err)
		}
	}

	return h, nil
}
