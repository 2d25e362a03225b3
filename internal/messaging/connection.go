package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	maxReconnectAttempts = 5
	reconnectDelay       = 5 * time.Second
)

// Connect подключается к RabbitMQ с несколькими попытками.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			logger.Info("RabbitMQ connected successfully")
			return conn, nil
		}
		lastErr = err
		logger.Error("Failed to connect to RabbitMQ", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == maxReconnectAttempts {
			break
		}
		select {
		case <-time.After(reconnectDelay):
			logger.Info("Retrying RabbitMQ connection...")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxReconnectAttempts, lastErr)
}

// declareTaskQueue объявляет durable очередь задач с dead-letter exchange.
// Сообщения, отклоненные без requeue, попадают в очередь {queue}.dead.
func declareTaskQueue(ch *amqp091.Channel, queue string) error {
	dlx := queue + ".dlx"
	dlq := queue + ".dead"

	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, "", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue '%s' to exchange '%s': %w", dlq, dlx, err)
	}
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp091.Table{"x-dead-letter-exchange": dlx},
	)
	if err != nil {
		return fmt.Errorf("failed to declare task queue %s: %w", queue, err)
	}
	return nil
}
