package worker

import (
	"context"
	"log/slog"

	"github.com/shaiso/Outpost/internal/kafka"
	"github.com/shaiso/Outpost/internal/mq"
)

// HandleFunc обрабатывает тело сообщения с DispatchPayload.
type HandleFunc func(ctx context.Context, body []byte) error

// Source — транспорт, из которого worker получает payload'ы.
//
// Consume блокирует до отмены ctx. Ошибка HandleFunc должна
// отправлять сообщение в DLQ транспорта.
type Source interface {
	Consume(ctx context.Context, handle HandleFunc) error
}

// rabbitSource — Source поверх очереди RabbitMQ.
type rabbitSource struct {
	conn     *mq.Connection
	queue    mq.Queue
	prefetch int
	logger   *slog.Logger
}

// NewRabbitSource создаёт Source для очереди dispatch.
func NewRabbitSource(conn *mq.Connection, topology mq.Topology, prefetch int, logger *slog.Logger) Source {
	return &rabbitSource{conn: conn, queue: topology.Dispatch, prefetch: prefetch, logger: logger}
}

func (s *rabbitSource) Consume(ctx context.Context, handle HandleFunc) error {
	consumer := mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
		Queue:    s.queue,
		Prefetch: s.prefetch,
		Handler: func(ctx context.Context, msg *mq.Message) error {
			return handle(ctx, msg.Payload)
		},
	})
	return consumer.Start(ctx)
}

// kafkaSource — Source поверх kafka consumer group.
type kafkaSource struct {
	consumer *kafka.Consumer
}

// NewKafkaSource создаёт Source из kafka.Consumer.
func NewKafkaSource(consumer *kafka.Consumer) Source {
	return &kafkaSource{consumer: consumer}
}

func (s *kafkaSource) Consume(ctx context.Context, handle HandleFunc) error {
	defer s.consumer.Close()
	return s.consumer.Subscribe(ctx, func(ctx context.Context, msg kafka.Message) error {
		return handle(ctx, msg.Value)
	})
}
