package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"AttendGate/storage/redis"
)

const (
	messageProcessedPrefix = "message:processed"

	processedTTL = 48 * time.Hour
)

// MessageMarks 消费端幂等标记
type MessageMarks struct {
	client *goredis.Client
}

func NewMessageMarks(client *goredis.Client) *MessageMarks {
	return &MessageMarks{client: client}
}

// TryMarkProcessing 尝试原子性地标记消息正在处理（使用 SETNX）
// 返回 true 表示首次处理，false 表示重复消息或正在处理
func (m *MessageMarks) TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}
	ok, err := m.client.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// Unmark 处理失败时清除标记，允许重投后重试
func (m *MessageMarks) Unmark(ctx context.Context, messageID string) error {
	return m.client.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}

// MarkProcessed 处理成功后延长 TTL
func (m *MessageMarks) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return m.client.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "completed", ttl).Err()
}
