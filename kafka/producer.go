package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowermarket-svc/config"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const EventNotificationCreated = "notification_created"

// NotificationEvent is the payload carried on the notification topic.
type NotificationEvent struct {
	EventType    string              `json:"event_type"`
	Notification models.Notification `json:"notification"`
}

// InitProducer returns nil when no broker is configured.
func InitProducer(cfg *config.Config, logger *zap.Logger) (sarama.SyncProducer, error) {
	if cfg.KafkaBroker == "" {
		logger.Info("Kafka disabled, push side channel off")
		return nil, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer([]string{cfg.KafkaBroker}, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized")
	return producer, nil
}

// Publisher forwards committed notifications to Kafka. A nil producer makes
// it a no-op.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	timeout  time.Duration
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger, timeout: 10 * time.Second}
}

// Deliver publishes in the background so the request never waits on the
// broker. Failures are only logged.
func (p *Publisher) Deliver(ctx context.Context, notes []models.Notification) {
	if p == nil || p.producer == nil || len(notes) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.Publish(ctx, notes); err != nil {
			p.logger.Error("Failed to publish notifications",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.Int("count", len(notes)),
				zap.Error(err),
			)
		}
	}()
}

// Publish sends one message per notification, keyed by recipient so a
// user's notifications stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, notes []models.Notification) error {
	ctx, span := otel.Tracer("kafka").Start(ctx, "PublishNotifications")
	defer span.End()

	msgs := make([]*sarama.ProducerMessage, 0, len(notes))
	for _, n := range notes {
		eventJSON, err := json.Marshal(NotificationEvent{EventType: EventNotificationCreated, Notification: n})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := "broadcast"
		if n.UserID != nil {
			key = *n.UserID
		}

		// Inject trace context into Kafka message headers
		carrier := make(saramaHeaderCarrier, 0)
		otel.GetTextMapPropagator().Inject(ctx, &carrier)

		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:   p.topic,
			Key:     sarama.StringEncoder(key),
			Value:   sarama.ByteEncoder(eventJSON),
			Headers: []sarama.RecordHeader(carrier),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send messages: %w", err)
	}

	p.logger.Info("Notifications published",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("topic", p.topic),
		zap.Int("count", len(msgs)),
	)
	return nil
}

// saramaHeaderCarrier adapts producer headers to the otel TextMapCarrier.
type saramaHeaderCarrier []sarama.RecordHeader

func (c saramaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *saramaHeaderCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c saramaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
