package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const DLQExchangeName = ExchangeName + ".dlq"

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue for a specific routing key.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	queueName := fmt.Sprintf("%s.dlq", routingKey)

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishToDLQ 将无法处理的消息转入死信队列。保留原消息 header（含 trace），
// 并记录原始错误和来源队列
func publishToDLQ(ch *amqp091.Channel, msg amqp091.Delivery, sourceQueue, errorType, originalError string) error {
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-original-error"] = originalError
	headers["x-error-type"] = errorType
	headers["x-source-queue"] = sourceQueue
	headers["x-failed-at"] = time.Now().UTC().Format(time.RFC3339)

	return ch.Publish(
		DLQExchangeName,
		msg.RoutingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         msg.Body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
