// Package statestore — общее key-value хранилище статусов task.
//
// Это единственный канал от worker'а обратно к executor'у:
// worker'ы пишут StatusRecord по ключу TaskKey, reconciliation loop
// читает и удаляет. Отсутствие ключа — нормальное состояние
// ("ещё не стартовал или потерян"), а не ошибка транспорта.
//
// Реализации:
//   - MemoryStore — in-process map (тесты, локальный режим)
//   - RedisStore — Redis, JSON значения с TTL
//   - DynamoStore — DynamoDB таблица с partition key task_key
//   - repo.StateRepo — PostgreSQL (jsonb), см. пакет repo
//
// Все реализации безопасны при конкурентной записи разных ключей.
package statestore
