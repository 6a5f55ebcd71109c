// Package kafka — альтернативный транспорт dispatch поверх Kafka.
//
// Topic dispatch называется по namespace окружения, ключ сообщения —
// task_key (все попытки одной task попадают в одну партицию).
// Сообщения, которые worker не смог обработать, перекладываются в
// "<topic>.dlq" и коммитятся.
package kafka
