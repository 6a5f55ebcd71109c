package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/shaiso/Outpost/internal/domain"
)

// HeaderMessageID — заголовок с идентификатором сообщения.
const HeaderMessageID = "message_id"

// messageWriter — подмножество kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует сообщения в Kafka.
type Producer struct {
	writer messageWriter
}

// NewProducer создаёт Producer для брокеров.
func NewProducer(brokers []string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}}
}

// Publish отправляет value в topic. Контекст трассировки передаётся в заголовках.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	headers := HeaderCarrier{{Key: HeaderMessageID, Value: []byte(uuid.New().String())}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Spawner передаёт DispatchPayload worker'ам через topic dispatch.
type Spawner struct {
	producer *Producer
	topic    string
}

// NewSpawner создаёт Spawner для topic окружения.
func NewSpawner(producer *Producer, topic string) *Spawner {
	return &Spawner{producer: producer, topic: topic}
}

// Spawn публикует payload с ключом task_key.
func (s *Spawner) Spawn(ctx context.Context, payload *domain.DispatchPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return s.producer.Publish(ctx, s.topic, payload.TaskKey, data)
}
