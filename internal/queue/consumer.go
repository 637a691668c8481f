package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
	"AttendGate/pkg/logger"
	"AttendGate/pkg/metrics"
	"AttendGate/storage/mq"
)

const (
	processingTTL = 24 * time.Hour
	processedTTL  = 48 * time.Hour
)

// Deliverer 把事件投递给外部推送渠道
type Deliverer interface {
	Deliver(ctx context.Context, msg model.AttendanceEventMessage) error
}

// Marks 消息幂等标记，由 cache.MessageMarks 实现
type Marks interface {
	TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
}

// LogDeliverer 只记录日志，推送渠道接入前使用
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, msg model.AttendanceEventMessage) error {
	logger.Logger.Info("Attendance event delivered",
		zap.String("message_id", msg.MessageID),
		zap.String("type", msg.Type),
		zap.String("user_id", msg.UserID),
		zap.String("attendance_id", msg.AttendanceID),
		zap.String("status", msg.Status),
		zap.String("occurred_at", msg.OccurredAt),
	)
	return nil
}

// EventHandler 通知队列的消息处理
type EventHandler struct {
	marks     Marks
	deliverer Deliverer
}

func NewEventHandler(marks Marks, deliverer Deliverer) *EventHandler {
	return &EventHandler{marks: marks, deliverer: deliverer}
}

// Handle 满足 mq.MessageHandler
func (h *EventHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.AttendanceEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 格式错误的消息重投也无法处理
		metrics.RecordEventConsumed(ctx, "unknown", "malformed")
		return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed attendance event: %v", err)}
	}

	first, err := h.marks.TryMarkProcessing(ctx, msg.MessageID, processingTTL)
	if err != nil {
		// 标记失败时继续处理，宁可重复推送也不丢
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !first {
		metrics.RecordEventConsumed(ctx, msg.Type, "duplicate")
		return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
	}

	if err := h.deliverer.Deliver(ctx, msg); err != nil {
		if uerr := h.marks.Unmark(ctx, msg.MessageID); uerr != nil {
			logger.Logger.Warn("Failed to unmark message",
				zap.String("message_id", msg.MessageID),
				zap.Error(uerr),
			)
		}
		metrics.RecordEventConsumed(ctx, msg.Type, "failed")
		return fmt.Errorf("failed to deliver attendance event %s: %w", msg.MessageID, err)
	}

	if err := h.marks.MarkProcessed(ctx, msg.MessageID, processedTTL); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
	metrics.RecordEventConsumed(ctx, msg.Type, "delivered")
	return nil
}

// Consumer 由 mq.Client 实现
type Consumer interface {
	Consume(ctx context.Context, opts mq.ConsumeOptions) error
}

// StartNotificationConsumer 阻塞消费通知队列
func StartNotificationConsumer(ctx context.Context, c Consumer, h *EventHandler) error {
	return c.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.NotificationsQueue,
		ConsumerTag:   "attendance_notification_consumer",
		PrefetchCount: 10,
		Handler:       h.Handle,
	})
}
