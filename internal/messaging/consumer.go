package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fairytale-server/internal/models"
	"fairytale-server/internal/taskmanager"
)

var tasksReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fairytale_worker_tasks_received_total",
		Help: "Story tasks received from the queue, by result.",
	},
	[]string{"result"}, // accepted, duplicate, invalid, requeued
)

// StoryRunner выполняет прогон истории.
type StoryRunner interface {
	Run(ctx context.Context, storyID string, req models.StoryRequest)
}

// TaskConsumer читает задачи из очереди и запускает прогоны через TaskManager.
// Сообщение подтверждается после завершения прогона.
type TaskConsumer struct {
	runner StoryRunner
	tasks  *taskmanager.TaskManager
	logger *zap.Logger
}

// NewTaskConsumer создает TaskConsumer.
func NewTaskConsumer(runner StoryRunner, tasks *taskmanager.TaskManager, logger *zap.Logger) *TaskConsumer {
	return &TaskConsumer{runner: runner, tasks: tasks, logger: logger.Named("TaskConsumer")}
}

// HandleDelivery обрабатывает одно сообщение.
func (c *TaskConsumer) HandleDelivery(msg amqp091.Delivery) {
	log := c.logger.With(zap.Uint64("delivery_tag", msg.DeliveryTag), zap.String("correlation_id", msg.CorrelationId))

	var payload StoryTaskPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		log.Error("Failed to unmarshal story task, rejecting", zap.Error(err))
		tasksReceived.WithLabelValues("invalid").Inc()
		c.reject(log, msg)
		return
	}
	if err := payload.Validate(); err != nil {
		log.Error("Invalid story task, rejecting", zap.Error(err))
		tasksReceived.WithLabelValues("invalid").Inc()
		c.reject(log, msg)
		return
	}
	log = log.With(zap.String("story_id", payload.StoryID))

	err := c.tasks.Submit(payload.StoryID, func(ctx context.Context) {
		c.runner.Run(ctx, payload.StoryID, payload.Request)
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	})
	switch {
	case err == nil:
		tasksReceived.WithLabelValues("accepted").Inc()
		log.Info("Story task accepted")
	case errors.Is(err, models.ErrAlreadyQueued):
		// Прогон этой истории уже идет, повтор не нужен
		tasksReceived.WithLabelValues("duplicate").Inc()
		log.Warn("Duplicate story task, acknowledging")
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	default:
		tasksReceived.WithLabelValues("requeued").Inc()
		log.Warn("Cannot start story task now, requeueing", zap.Error(err))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	}
}

func (c *TaskConsumer) reject(log *zap.Logger, msg amqp091.Delivery) {
	if err := msg.Reject(false); err != nil {
		log.Error("Failed to reject message", zap.Error(err))
	}
}

// Consume объявляет очередь и обрабатывает сообщения до отмены ctx или
// закрытия канала брокером. Возвращает ошибку, если канал закрылся.
func (c *TaskConsumer) Consume(ctx context.Context, ch *amqp091.Channel, queue, consumerTag string, prefetch int) error {
	if err := declareTaskQueue(ch, queue); err != nil {
		return err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(
		queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consumer started, waiting for messages...", zap.String("queue", queue), zap.Int("prefetch", prefetch))

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("consumer channel closed by RabbitMQ")
			}
			c.HandleDelivery(msg)
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer...")
			if err := ch.Cancel(consumerTag, false); err != nil {
				c.logger.Warn("Failed to cancel consumer", zap.Error(err))
			}
			return nil
		}
	}
}
