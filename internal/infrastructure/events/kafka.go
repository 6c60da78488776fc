package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes evaluation and buybox events as JSON. Keys are
// pricing-evaluated-<productId> and buybox-selected-<productId> so events of
// one product stay on one partition.
type KafkaSink struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer, now: time.Now}
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (s *KafkaSink) PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error {
	event.Type = domain.EventPricingEvaluated
	s.stamp(&event.EventID, &event.OccurredAt)
	return s.publish(ctx, fmt.Sprintf("pricing-evaluated-%s", event.ProductID), event.Type, event)
}

func (s *KafkaSink) PublishBuybox(ctx context.Context, event domain.BuyboxEvent) error {
	event.Type = domain.EventBuyboxSelected
	s.stamp(&event.EventID, &event.OccurredAt)
	return s.publish(ctx, fmt.Sprintf("buybox-selected-%s", event.ProductID), event.Type, event)
}

func (s *KafkaSink) stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = s.now().UTC()
	}
}

func (s *KafkaSink) publish(ctx context.Context, key, eventType string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(eventType)}},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Discard drops every event. It stands in when no brokers are configured.
type Discard struct{}

func (Discard) PublishEvaluation(context.Context, domain.EvaluationEvent) error { return nil }

func (Discard) PublishBuybox(context.Context, domain.BuyboxEvent) error { return nil }
