package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/segmentio/kafka-go"
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

// KafkaConfig selects the brokers, topic and consumer group
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaQueue publishes notifications to a topic and consumes them through a
// consumer group. Offsets are committed after the handler returns.
type KafkaQueue struct {
	writer messageWriter
	reader messageReader
	topic  string
	logger *slog.Logger
}

func NewKafkaQueue(cfg KafkaConfig, logger *slog.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka queue requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka queue requires a topic")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka queue requires group id")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newKafkaQueue(writer, reader, cfg.Topic, logger), nil
}

func newKafkaQueue(writer messageWriter, reader messageReader, topic string, logger *slog.Logger) *KafkaQueue {
	return &KafkaQueue{writer: writer, reader: reader, topic: topic, logger: logger}
}

func (q *KafkaQueue) Publish(ctx context.Context, msg *models.NotificationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RequestID),
		Value: payload,
		Time:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.topic, err)
	}
	return nil
}

// Consume blocks until ctx is cancelled. Undecodable messages are logged and
// committed so they cannot stall the partition.
func (q *KafkaQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch from %s: %w", q.topic, err)
		}

		var msg models.NotificationMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			q.logger.Error("dropping undecodable notification",
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("error", err))
		} else if err := handle(ctx, &msg); err != nil {
			q.logger.Warn("notification handler failed",
				slog.String("request_id", msg.RequestID),
				slog.Any("error", err))
		}

		if err := q.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to commit offset %d: %w", m.Offset, err)
		}
	}
}

func (q *KafkaQueue) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}
