package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
)

// Compile-time check
var _ interfaces.ClientUpdatePublisher = (*rabbitMQPublisher)(nil)

// rabbitMQPublisher публикует клиентские обновления в очередь RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQClientUpdatePublisher открывает канал и объявляет очередь
// клиентских обновлений. Параметры очереди должны совпадать с консьюмером.
func NewRabbitMQClientUpdatePublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (interfaces.ClientUpdatePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("client update publisher: не удалось открыть канал: %w", err)
	}

	// Объявляем очередь здесь, чтобы не зависеть от порядка запуска сервисов.
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("client update publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	logger = logger.Named("ClientUpdatePublisher")
	logger.Info("Queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: logger}, nil
}

// PublishPlotCompleted publishes a plot completion update for the client.
func (p *rabbitMQPublisher) PublishPlotCompleted(ctx context.Context, payload interfaces.PlotCompletedUpdate) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка подготовки сообщения PlotCompletedUpdate: %w", err)
	}
	return p.publishMessage(ctx, body)
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "story-service",
			},
		)
		if err == nil {
			p.logger.Debug("Message published",
				zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
}
