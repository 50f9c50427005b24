// Package queue carries click events over Kafka between the redirect path and
// the aggregator.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/config"
	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Applier stores one event synchronously.
type Applier interface {
	Apply(ctx context.Context, event *models.ClickEvent) error
}

func encodeEvent(event *models.ClickEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal click event: %w", err)
	}
	// Keyed by code so one partition, and one consumer, sees a code in order.
	return kafka.Message{Key: []byte(event.ShortCode), Value: value, Time: event.ClickedAt}, nil
}

func decodeEvent(msg kafka.Message) (*models.ClickEvent, error) {
	var event models.ClickEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal click event: %w", err)
	}
	if event.ID == "" || event.ShortCode == "" {
		return nil, errors.New("click event without id or short code")
	}
	return &event, nil
}

// KafkaPublisher is a ClickRecorder that hands events to an async writer.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Failed to publish click events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	// Detached: the redirect request finishing must not cancel the publish.
	if err := p.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		p.logger.Warn("Click event not published", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer applies events from the topic and commits each offset only
// after the event has been applied.
type KafkaConsumer struct {
	reader  messageReader
	applier Applier
	logger  *zap.Logger
}

func NewKafkaConsumer(cfg config.KafkaConfig, applier Applier, logger *zap.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(r, applier, logger)
}

func newKafkaConsumer(r messageReader, applier Applier, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: r, applier: applier, logger: logger}
}

// Run consumes until ctx is done.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("Click consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Click consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch click event: %w", err)
		}

		event, err := decodeEvent(msg)
		if err != nil {
			c.logger.Error("Skipping malformed click event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else if err := c.applier.Apply(ctx, event); err != nil && ctx.Err() != nil {
			// Interrupted mid-apply: leave the offset so the event is redelivered.
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit click event: %w", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
