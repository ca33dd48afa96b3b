package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowermarket-svc/config"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/push"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Notifier is what the consumer hands decoded notifications to. When Notify
// fails with a *push.UnsentError, retries go through Resend with the unsent
// messages only.
type Notifier interface {
	Notify(ctx context.Context, notes []models.Notification) error
	Resend(ctx context.Context, msgs []push.Message) error
}

func InitConsumer(cfg *config.Config, logger *zap.Logger) (sarama.Consumer, error) {
	if cfg.KafkaBroker == "" {
		return nil, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer([]string{cfg.KafkaBroker}, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

type Consumer struct {
	consumer   sarama.Consumer
	topic      string
	notifier   Notifier
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewConsumer(consumer sarama.Consumer, topic string, notifier Notifier, logger *zap.Logger) *Consumer {
	return &Consumer{
		consumer:   consumer,
		topic:      topic,
		notifier:   notifier,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Start consumes every partition of the topic until ctx is cancelled. If a
// partition cannot be opened, the ones already running are stopped and
// closed before the error is returned.
func (c *Consumer) Start(ctx context.Context) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, partition, sarama.OffsetNewest)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.consume(ctx, pc)
		}()
	}

	c.logger.Info("Kafka consumer started", zap.String("topic", c.topic), zap.Int("partitions", len(partitions)))
	wg.Wait()
	return nil
}

func (c *Consumer) consume(ctx context.Context, pc sarama.PartitionConsumer) {
	defer pc.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := c.handleMessageWithRetry(ctx, message); err != nil {
				c.logger.Error("Failed to handle message after retries", zap.Error(err))
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			c.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

// handleMessageWithRetry retries a failed push. Once part of it went out,
// later attempts resend only what Expo never accepted.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var (
		lastErr error
		pending []push.Message
	)
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var err error
		if len(pending) > 0 {
			err = c.notifier.Resend(ctx, pending)
		} else {
			err = c.handleMessage(ctx, message)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		var unsent *push.UnsentError
		if errors.As(err, &unsent) && len(unsent.Messages) > 0 {
			pending = unsent.Messages
		}
		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	// Extract trace context from Kafka message headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, saramaHeaderCarrierConsumer(message.Headers))
	ctx, span := otel.Tracer("kafka").Start(ctx, "ProcessNotificationEvent")
	defer span.End()

	var event NotificationEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		c.logger.Warn("Dropping malformed event", zap.Int64("offset", message.Offset), zap.Error(err))
		return nil
	}
	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("notification.id", event.Notification.ID.String()),
	)

	if event.EventType != EventNotificationCreated {
		c.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}

	if err := c.notifier.Notify(ctx, []models.Notification{event.Notification}); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Info("Push notification dispatched",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("notification_id", event.Notification.ID.String()),
		zap.String("title", event.Notification.Title),
	)
	return nil
}

// saramaHeaderCarrierConsumer adapts consumer headers to the otel TextMapCarrier.
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
