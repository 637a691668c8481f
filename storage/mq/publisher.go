package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"AttendGate/pkg/logger"
	mqotel "AttendGate/pkg/mq"
)

func (c *Client) getPublisherChannel() (*amqp.Channel, error) {
	// 先读锁检查
	c.pubMutex.RLock()
	if c.publisherCh != nil && !c.publisherCh.IsClosed() {
		ch := c.publisherCh
		c.pubMutex.RUnlock()
		return ch, nil
	}
	c.pubMutex.RUnlock()

	c.pubMutex.Lock()
	defer c.pubMutex.Unlock()

	if c.publisherCh != nil && !c.publisherCh.IsClosed() {
		return c.publisherCh, nil
	}

	if c.conn == nil || c.conn.IsClosed() {
		return nil, fmt.Errorf("rabbitmq connection is closed")
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	c.publisherCh = ch

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closeChan

		c.pubMutex.Lock()
		if c.publisherCh == ch {
			c.publisherCh = nil
		}
		c.pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)

	return ch, nil
}

// PublishMessage 发送持久化 JSON 消息，并把追踪上下文写入消息头
func (c *Client) PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	ch, err := c.getPublisherChannel()
	if err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		Body:         bodyBytes,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	ctx, span := mqotel.StartPublishSpan(ctx, c.serviceName, exchange, routingKey, &msg)
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	mqotel.EndSpan(span, err)

	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
