package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message — сообщение, переданное обработчику.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Offset  int64
	Headers []kafka.Header
}

// ID возвращает идентификатор сообщения из заголовков.
func (m Message) ID() string {
	return HeaderCarrier(m.Headers).Get(HeaderMessageID)
}

// HandlerFunc обрабатывает одно сообщение.
// Ошибка — сообщение перекладывается в DLQ topic.
type HandlerFunc func(ctx context.Context, msg Message) error

// messageReader — подмножество kafka.Reader.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает topic в составе consumer group.
type Consumer struct {
	reader   messageReader
	dlq      *Producer
	dlqTopic string
	logger   *slog.Logger
}

// DLQTopic возвращает имя DLQ topic для topic.
func DLQTopic(topic string) string {
	return topic + ".dlq"
}

// NewConsumer создаёт Consumer. dlq — producer для перекладывания в DLQ.
func NewConsumer(brokers []string, topic, groupID string, dlq *Producer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: r, dlq: dlq, dlqTopic: DLQTopic(topic), logger: logger}
}

// Subscribe читает сообщения до отмены ctx.
//
// Offset коммитится после обработки. Если обработчик вернул ошибку,
// сообщение сначала перекладывается в DLQ; если и это не удалось,
// offset не коммитится и сообщение будет доставлено повторно.
func (c *Consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		msg := Message{
			Topic:   m.Topic,
			Key:     m.Key,
			Value:   m.Value,
			Offset:  m.Offset,
			Headers: m.Headers,
		}

		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		if err := handler(msgCtx, msg); err != nil {
			c.logger.Error("message handler failed",
				"topic", m.Topic,
				"offset", m.Offset,
				"message_id", msg.ID(),
				"error", err,
			)
			if err := c.deadLetter(ctx, m); err != nil {
				c.logger.Error("failed to dead-letter message, skipping commit",
					"topic", m.Topic,
					"offset", m.Offset,
					"error", err,
				)
				continue
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit kafka offset",
				"topic", m.Topic,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message) error {
	if c.dlq == nil {
		return nil
	}
	return c.dlq.Publish(ctx, c.dlqTopic, string(m.Key), m.Value)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
