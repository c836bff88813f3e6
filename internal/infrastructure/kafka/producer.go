package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/honeynil/LibraryAuthService/internal/models"
	"github.com/segmentio/kafka-go"
)

// Producer publishes auth events to a single topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topic: topic}
}

// Publish sends the event keyed by user id so one user's events stay ordered.
func (p *Producer) Publish(ctx context.Context, event models.AuthEvent) error {
	msg, err := newEventMessage(p.topic, event)
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send Kafka message", "topic", msg.Topic, "key", string(msg.Key), "error", err)
		return err
	}
	slog.Info("Kafka message sent", "topic", msg.Topic, "key", string(msg.Key))
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}

func newEventMessage(topic string, event models.AuthEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}
