// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// RabbitMQ — транспорт dispatch по умолчанию: executor публикует
// DispatchPayload, worker'ы потребляют его из очереди окружения.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (retry при старте, reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений, Spawner для executor'а
//   - consumer.go   — потребление сообщений, ack/nack
//
// Типы сообщений:
//   - task.dispatch — task передана worker'у
//
// Exchanges:
//   - outpost.dispatch — dispatch tasks, routing key = имя очереди окружения
//   - outpost.dlq      — dead letter (невалидные payload'ы, ошибки выполнения)
package mq
