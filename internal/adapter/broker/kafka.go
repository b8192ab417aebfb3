// Package broker publishes order lifecycle events to Kafka. Delivery is
// best-effort; callers log publish failures and move on.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ev-marketplace/config"
	"ev-marketplace/internal/core/domain"
)

// Producer writes order events to a single Kafka topic, keyed by order
// number so events for one order stay in partition order.
type Producer struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewProducer(cfg config.KafkaConfig, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{
		writer: writer,
		log:    log.With().Str("component", "kafka_producer").Logger(),
	}
}

func (p *Producer) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderNumber),
		Value: payload,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}

	p.log.Debug().
		Str("event_type", event.EventType).
		Str("order_number", event.OrderNumber).
		Msg("published order event")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops events. Used when Kafka is disabled in config.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderEvent(context.Context, domain.OrderEvent) error {
	return nil
}
