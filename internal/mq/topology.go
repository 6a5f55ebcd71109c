package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges — имена обменников.
const (
	ExchangeDispatch Exchange = "outpost.dispatch"
	ExchangeDLQ      Exchange = "outpost.dlq"
)

// Topology — очереди одного окружения.
//
// Очередь dispatch называется по namespace окружения
// ("outpost-dispatch-main"); routing key совпадает с именем очереди.
type Topology struct {
	Dispatch Queue
	DLQ      Queue
}

// NewTopology строит топологию для очереди dispatch.
func NewTopology(queue string) Topology {
	return Topology{
		Dispatch: Queue(queue),
		DLQ:      Queue(queue + ".dlq"),
	}
}

// Setup объявляет exchanges, очереди и привязки. Операция идемпотентна.
func (t Topology) Setup(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeDispatch, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		queues := []struct {
			name     Queue
			exchange Exchange
			args     amqp.Table
		}{
			{t.Dispatch, ExchangeDispatch, t.deadLetterArgs()},
			{t.DLQ, ExchangeDLQ, nil},
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
			if err := ch.QueueBind(string(q.name), string(q.name), string(q.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
			}
		}
		return nil
	})
}

func (t Topology) deadLetterArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(t.DLQ),
	}
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (direct)\n", ExchangeDispatch)
	fmt.Fprintf(&b, "└── %s [routing: %s] consumer: outpost-worker, DLQ: %s\n", t.Dispatch, t.Dispatch, t.DLQ)
	fmt.Fprintf(&b, "%s (direct)\n", ExchangeDLQ)
	fmt.Fprintf(&b, "└── %s [routing: %s] manual processing\n", t.DLQ, t.DLQ)
	return b.String()
}
