package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"AttendGate/internal/admission"
	"AttendGate/internal/model"
	"AttendGate/pkg/logger"
	"AttendGate/storage/mq"
)

// MessagePublisher 由 mq.Client 实现
type MessagePublisher interface {
	PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error
}

// Publisher 把准入成功事件发布到 attendance.events，交给通知 worker
type Publisher struct {
	mq  MessagePublisher
	ids admission.IDGenerator
}

func NewPublisher(mq MessagePublisher, ids admission.IDGenerator) *Publisher {
	return &Publisher{mq: mq, ids: ids}
}

var _ admission.Notifier = (*Publisher)(nil)

// Notify 路由键即事件类型
func (p *Publisher) Notify(ctx context.Context, ev admission.Event) error {
	id, err := p.ids.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.AttendanceEventMessage{
		MessageID:    fmt.Sprintf("att_evt_%d", id),
		Type:         ev.Type,
		UserID:       ev.UserID,
		AttendanceID: ev.AttendanceID,
		Status:       string(ev.Status),
		OccurredAt:   ev.OccurredAt.UTC().Format(time.RFC3339),
	}

	if err := p.mq.PublishMessage(ctx, mq.EventsExchange, ev.Type, msg.MessageID, msg); err != nil {
		return err
	}

	logger.Logger.Debug("Published attendance event",
		zap.String("message_id", msg.MessageID),
		zap.String("type", msg.Type),
		zap.String("attendance_id", msg.AttendanceID),
	)
	return nil
}
