package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"AttendGate/pkg/logger"
)

// 考勤事件拓扑
const (
	EventsExchange     = "attendance.events"
	NotificationsQueue = "attendance.notifications"
	EventsRoutingKey   = "attendance.#"
)

// Client RabbitMQ 连接句柄，发布通道懒创建并在关闭后重建
type Client struct {
	conn        *amqp.Connection
	serviceName string

	publisherCh *amqp.Channel
	pubMutex    sync.RWMutex // 读多写少
}

// Dial 建立连接，返回的句柄由调用方负责关闭
func Dial(url, serviceName string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return &Client{conn: conn, serviceName: serviceName}, nil
}

// DeclareTopology 声明事件交换机与通知队列，幂等
func (c *Client) DeclareTopology() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", EventsExchange, err)
	}
	if _, err := ch.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", NotificationsQueue, err)
	}
	if err := ch.QueueBind(NotificationsQueue, EventsRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", NotificationsQueue, err)
	}

	logger.Logger.Info("RabbitMQ topology declared",
		zap.String("exchange", EventsExchange),
		zap.String("queue", NotificationsQueue),
	)
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return nil
	}

	c.pubMutex.Lock()
	if c.publisherCh != nil {
		_ = c.publisherCh.Close()
		c.publisherCh = nil
	}
	c.pubMutex.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
