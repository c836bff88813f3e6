package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// UserStatusStore is the part of the user repository the consumer needs.
type UserStatusStore interface {
	SetActive(ctx context.Context, userID int64, active bool) error
	ClearRefreshToken(ctx context.Context, userID int64) error
}

// Consumer applies user administration commands published by other services.
type Consumer struct {
	reader     *kafka.Reader
	users      UserStatusStore
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, users UserStatusStore) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		users:      users,
		retryDelay: time.Second,
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Consume blocks until ctx is cancelled or the reader is closed.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				slog.Info("Kafka consumer stopped", "topic", c.reader.Config().Topic)
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			if !sleepCtx(ctx, c.retryDelay) {
				slog.Info("Kafka consumer stopped", "topic", c.reader.Config().Topic)
				return
			}
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)

		if err := HandleMessage(ctx, c.users, msg); err != nil {
			slog.Error("failed to apply admin command", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			// TODO: Send to dead-letter queue
		}
	}
}

// HandleMessage applies one admin command. Deactivation also clears the
// stored refresh token so refresh tokens already handed out stop working.
func HandleMessage(ctx context.Context, users UserStatusStore, msg kafka.Message) error {
	var cmd models.AdminCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("%w: failed to decode admin command: %w", pkgerrors.ErrInvalidInput, err)
	}
	if cmd.UserID <= 0 {
		return fmt.Errorf("%w: admin command without user_id", pkgerrors.ErrInvalidInput)
	}

	switch cmd.Type {
	case models.CommandUserDeactivated:
		if err := users.SetActive(ctx, cmd.UserID, false); err != nil {
			return fmt.Errorf("failed to deactivate user %d: %w", cmd.UserID, err)
		}
		if err := users.ClearRefreshToken(ctx, cmd.UserID); err != nil {
			return fmt.Errorf("failed to revoke refresh token for user %d: %w", cmd.UserID, err)
		}
		slog.Info("user deactivated", "user_id", cmd.UserID)

	case models.CommandUserActivated:
		if err := users.SetActive(ctx, cmd.UserID, true); err != nil {
			return fmt.Errorf("failed to activate user %d: %w", cmd.UserID, err)
		}
		slog.Info("user activated", "user_id", cmd.UserID)

	default:
		return fmt.Errorf("%w: unknown admin command %q", pkgerrors.ErrInvalidInput, cmd.Type)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
