package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

// publishChannel - часть amqp091.Channel, нужная издателю.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// jsonPublisher публикует JSON сообщения в очередь через default exchange.
type jsonPublisher struct {
	mu     sync.Mutex
	ch     publishChannel
	queue  string
	logger *zap.Logger
}

func (p *jsonPublisher) publish(ctx context.Context, payload interface{}, correlationID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("publisher channel is closed")
	}
	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			Timestamp:     time.Now(),
			Body:          body,
			DeliveryMode:  amqp091.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close закрывает канал издателя.
func (p *jsonPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		err := p.ch.Close()
		p.ch = nil
		return err
	}
	return nil
}

// TaskPublisher отправляет прогоны историй воркерам через RabbitMQ.
type TaskPublisher struct {
	jsonPublisher
}

// NewTaskPublisher открывает канал и объявляет очередь задач.
func NewTaskPublisher(conn *amqp091.Connection, queue string, logger *zap.Logger) (*TaskPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for publisher: %w", err)
	}
	if err := declareTaskQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	logger.Info("Story task queue declared", zap.String("queue", queue))
	return newTaskPublisher(ch, queue, logger), nil
}

func newTaskPublisher(ch publishChannel, queue string, logger *zap.Logger) *TaskPublisher {
	return &TaskPublisher{jsonPublisher{ch: ch, queue: queue, logger: logger.Named("TaskPublisher")}}
}

// Schedule реализует interfaces.StoryScheduler.
func (p *TaskPublisher) Schedule(ctx context.Context, storyID string, req models.StoryRequest) error {
	payload := StoryTaskPayload{StoryID: storyID, Request: req, EnqueuedAt: time.Now().UTC()}
	if err := p.publish(ctx, payload, storyID); err != nil {
		p.logger.Error("Failed to publish story task", zap.String("story_id", storyID), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrQueueFull, err)
	}
	p.logger.Info("Story task published", zap.String("story_id", storyID), zap.String("queue", p.queue))
	return nil
}

// StatusNotifier публикует события о завершении генерации в очередь статусов.
type StatusNotifier struct {
	jsonPublisher
}

// NewStatusNotifier открывает канал и объявляет очередь статусов.
func NewStatusNotifier(conn *amqp091.Connection, queue string, logger *zap.Logger) (*StatusNotifier, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for publisher: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare status queue %s: %w", queue, err)
	}
	return newStatusNotifier(ch, queue, logger), nil
}

func newStatusNotifier(ch publishChannel, queue string, logger *zap.Logger) *StatusNotifier {
	return &StatusNotifier{jsonPublisher{ch: ch, queue: queue, logger: logger.Named("StatusNotifier")}}
}

// NotifyStatus реализует interfaces.StatusNotifier.
func (n *StatusNotifier) NotifyStatus(ctx context.Context, event models.StoryStatusEvent) error {
	if err := n.publish(ctx, event, event.StoryID); err != nil {
		return err
	}
	n.logger.Debug("Story status event published",
		zap.String("story_id", event.StoryID),
		zap.String("status", string(event.Status)),
	)
	return nil
}

// NopNotifier используется, когда RabbitMQ не настроен.
type NopNotifier struct{}

func (NopNotifier) NotifyStatus(context.Context, models.StoryStatusEvent) error { return nil }

var (
	_ interfaces.StoryScheduler = (*TaskPublisher)(nil)
	_ interfaces.StatusNotifier = (*StatusNotifier)(nil)
	_ interfaces.StatusNotifier = NopNotifier{}
	_ publishChannel            = (*amqp091.Channel)(nil)
)
