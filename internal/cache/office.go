package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"AttendGate/internal/model"
	"AttendGate/storage/redis"
)

const (
	officeConfigKey = "office:config"
	// 每次配置变更自增，数据键带上版本号
	officeConfigVersionKey = "office:config:version"

	// 防雪崩随机抖动上限
	ttlJitterMax = 30 * time.Second
)

// OfficeConfigCache 组装好的办公室配置缓存，所有副本共享
//
// 回源前读到的版本号随 Set 一起写回，Invalidate 自增版本，
// 变更前读库的旧配置只会落到已废弃的键上。
type OfficeConfigCache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	ttl     time.Duration
}

func NewOfficeConfigCache(client *goredis.Client, ttl time.Duration) *OfficeConfigCache {
	return &OfficeConfigCache{
		client: client,
		// Redis 连续失败 5 次后熔断，30 秒后尝试恢复
		breaker: NewCircuitBreaker("office_config_cache", 5, 30*time.Second),
		ttl:     ttl,
	}
}

func officeConfigDataKey(version int64) string {
	return redis.Key(officeConfigKey, strconv.FormatInt(version, 10))
}

// Get 返回当前版本号，命中时 hit 为 true；未命中时回源结果须带此版本号 Set
func (c *OfficeConfigCache) Get(ctx context.Context) (*model.OfficeConfig, int64, bool, error) {
	var (
		version int64
		data    string
	)
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		version, err = c.client.Get(ctx, redis.Key(officeConfigVersionKey)).Int64()
		if err != nil && err != goredis.Nil {
			return err
		}
		data, err = c.client.Get(ctx, officeConfigDataKey(version)).Result()
		if err == goredis.Nil {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get office config cache: %w", err)
	}
	if data == "" {
		return nil, version, false, nil
	}

	var cfg model.OfficeConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, version, false, fmt.Errorf("failed to unmarshal office config cache: %w", err)
	}
	return &cfg, version, true, nil
}

// Set 写入 version 对应的键，version 已过期时写入的值不会再被读到
func (c *OfficeConfigCache) Set(ctx context.Context, version int64, cfg *model.OfficeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal office config: %w", err)
	}

	ttl := c.ttl + time.Duration(rand.Int63n(int64(ttlJitterMax)))
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, officeConfigDataKey(version), data, ttl).Err()
	})
}

// Invalidate 配置变更后自增版本，并删除旧版本的数据
func (c *OfficeConfigCache) Invalidate(ctx context.Context) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		version, err := c.client.Incr(ctx, redis.Key(officeConfigVersionKey)).Result()
		if err != nil {
			return err
		}
		return c.client.Del(ctx, officeConfigDataKey(version-1)).Err()
	})
}
