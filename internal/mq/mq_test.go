package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAcknowledger запоминает ack/nack.
type fakeAcknowledger struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acked++; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, body any) amqp.Delivery {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case string:
		data = []byte(b)
	default:
		var err error
		data, err = json.Marshal(b)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: data}
}

func TestConsumer_HandleDelivery_Ack(t *testing.T) {
	var got *Message
	c := &Consumer{logger: testLogger(), queue: "q", handler: func(_ context.Context, msg *Message) error {
		got = msg
		return nil
	}}

	msg, err := NewMessage(MessageTypeTaskDispatch, map[string]string{"task_key": "w:s:r:1"})
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	c.handleDelivery(context.Background(), delivery(t, ack, msg))

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 0, ack.nacked)
	require.NotNil(t, got)
	assert.Equal(t, msg.ID, got.ID)
	assert.JSONEq(t, `{"task_key":"w:s:r:1"}`, string(got.Payload))
}

func TestConsumer_HandleDelivery_HandlerErrorDeadLetters(t *testing.T) {
	c := &Consumer{logger: testLogger(), queue: "q", handler: func(context.Context, *Message) error {
		return errors.New("boom")
	}}

	msg, err := NewMessage(MessageTypeTaskDispatch, map[string]string{})
	require.NoError(t, err)

	ack := &fakeAcknowledger{requeue: true}
	c.handleDelivery(context.Background(), delivery(t, ack, msg))

	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestConsumer_HandleDelivery_BadJSON(t *testing.T) {
	called := false
	c := &Consumer{logger: testLogger(), queue: "q", handler: func(context.Context, *Message) error {
		called = true
		return nil
	}}

	ack := &fakeAcknowledger{}
	c.handleDelivery(context.Background(), delivery(t, ack, "{oops"))

	assert.False(t, called)
	assert.Equal(t, 1, ack.nacked)
}

type fakePublisher struct {
	exchange   Exchange
	routingKey string
	msg        *Message
	err        error
}

func (f *fakePublisher) Publish(_ context.Context, exchange Exchange, routingKey string, msg *Message) error {
	f.exchange = exchange
	f.routingKey = routingKey
	f.msg = msg
	return f.err
}

func TestSpawner_Spawn(t *testing.T) {
	pub := &fakePublisher{}
	s := &Spawner{pub: pub, queue: NewTopology("outpost-dispatch-main").Dispatch}

	payload := &domain.DispatchPayload{
		TaskKey: "etl:load:run42:1",
		Command: []string{"echo", "hi"},
		Env:     map[string]string{"A": "1"},
	}
	require.NoError(t, s.Spawn(context.Background(), payload))

	assert.Equal(t, ExchangeDispatch, pub.exchange)
	assert.Equal(t, "outpost-dispatch-main", pub.routingKey)
	assert.Equal(t, MessageTypeTaskDispatch, pub.msg.Type)
	assert.NotEmpty(t, pub.msg.ID)

	decoded, err := domain.DecodePayload(pub.msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload.TaskKey, decoded.TaskKey)
	assert.Equal(t, payload.Command, decoded.Command)
}

func TestSpawner_SpawnError(t *testing.T) {
	pub := &fakePublisher{err: ErrNoChannel}
	s := &Spawner{pub: pub, queue: "q"}

	err := s.Spawn(context.Background(), &domain.DispatchPayload{TaskKey: "w:s:r:1", Command: []string{"true"}})
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestTopology(t *testing.T) {
	top := NewTopology("outpost-dispatch-dev")

	assert.Equal(t, Queue("outpost-dispatch-dev"), top.Dispatch)
	assert.Equal(t, Queue("outpost-dispatch-dev.dlq"), top.DLQ)
	assert.Equal(t, string(ExchangeDLQ), top.deadLetterArgs()["x-dead-letter-exchange"])
	assert.Contains(t, top.Info(), "outpost-dispatch-dev.dlq")
}
