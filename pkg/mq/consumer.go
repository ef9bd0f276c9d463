package mq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"lunexops/pkg/metrics"
	"lunexops/pkg/otel"
	"lunexops/pkg/trace"
	"lunexops/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger

	retries    RetryTracker
	maxRetries int64
}

// RetryTracker 跨实例记录消息的失败次数（util.RetryCounter 实现）
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// NewConsumer creates a consumer bound to one or more routing keys.
// An empty queueName declares a server-named, exclusive, auto-delete queue so
// that every process instance receives its own copy of each message.
func NewConsumer(url, queueName string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, ch, err := openChannel(url)
	if err != nil {
		return nil, err
	}

	broadcast := queueName == ""
	q, err := ch.QueueDeclare(
		queueName,
		!broadcast, // durable
		broadcast,  // auto-delete
		broadcast,  // exclusive
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
		if _, err := DeclareDLQQueue(ch, key); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKeys: routingKeys,
		logger:      logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetryCounter 可重试错误最多重新入队 maxRetries 次；不设置时只重试一次（依据 Redelivered）
func (c *Consumer) WithRetryCounter(rt RetryTracker, maxRetries int64) *Consumer {
	c.retries = rt
	c.maxRetries = maxRetries
	return c
}

// IsConnected 用于 readiness 检查
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages until ctx is done or the channel
// closes. It blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.Strings("routing_keys", c.routingKeys),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", c.queue.Name)
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()

	carrier := otel.NewMQHeaderCarrier(msg.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)
	if traceID := carrier.Get(trace.HeaderName()); traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	c.logger.Debug("Received message",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
	)

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", msg.RoutingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.deadLetter(msg, "panic", fmt.Sprint(r))
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		span.RecordError(err)
		retryable, errType := util.IsRetryableError(err)
		c.logger.Error("Handler error",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("queue", c.queue.Name),
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)

		// 可重试且未超过重试次数 → 重新入队；否则转入死信队列
		if retryable && c.shouldRequeue(ctx, msg) {
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
			}
			return
		}
		c.deadLetter(msg, errType, err.Error())
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		return
	}
	if c.retries != nil {
		_ = c.retries.Reset(ctx, c.retryKey(msg))
	}

	metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	c.logger.Debug("Message processed successfully",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
	)
}

func (c *Consumer) deadLetter(msg amqp091.Delivery, errType, reason string) {
	if err := publishToDLQ(c.channel, msg, c.queue.Name, errType, reason); err != nil {
		c.logger.Error("Failed to publish to DLQ, requeueing",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack dead-lettered message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
	}
}

func (c *Consumer) shouldRequeue(ctx context.Context, msg amqp091.Delivery) bool {
	if c.retries == nil {
		return !msg.Redelivered
	}
	count, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
	if err != nil {
		c.logger.Warn("Retry counter unavailable, falling back to redelivery flag", zap.Error(err))
		return !msg.Redelivered
	}
	return util.ShouldRetry(count, c.maxRetries, true)
}

// retryKey 优先使用 MessageId，老消息没有时用 body 摘要
func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	id := msg.MessageId
	if id == "" {
		sum := sha256.Sum256(msg.Body)
		id = hex.EncodeToString(sum[:8])
	}
	return util.FormatRetryKey(c.queue.Name, id)
}
