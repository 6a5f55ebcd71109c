// Package worker выполняет DispatchPayload'ы на стороне платформы выполнения.
//
// # Обзор
//
// Worker — stateless процесс, который потребляет payload'ы из очереди
// dispatch и для каждого запускает Handler. Обратного канала к executor'у
// нет: единственный результат работы — записи в общем хранилище статусов
// (statestore.Store) и, опционально, файл лога в архиве.
//
// # Ключевые компоненты
//
// ## Handler
//
// Выполняет ровно один payload:
//
//	h := worker.NewHandler(worker.HandlerConfig{
//	    Store:   store,
//	    Archive: archive.NewFileArchive("/logs"),
//	    Logger:  logger,
//	})
//	err := h.Handle(ctx, payload)
//
// Режимы работы определяются формой payload:
//   - command — argv запускается как есть
//   - workload — запускается WorkloadCommand с JSON workload последним аргументом
//
// ## Runner
//
// Интерфейс запуска дочернего процесса. ExecRunner — реализация на os/exec.
//
// ## Worker
//
// Жизненный цикл consumers. Каждый Source (RabbitMQ или Kafka) — отдельный
// consumer; Start запускает их в errgroup, Stop отменяет и ждёт.
//
// # Статусы
//
//	RUNNING → перед запуском дочернего процесса
//	SUCCESS → код выхода 0
//	FAILED  → ненулевой код, либо -1 и error, если процесс не запустился
//
// В записи хранятся последние 2000 символов stdout и stderr.
//
// # Ошибки
//
// Handle возвращает error в двух случаях: невалидный payload
// (ErrMalformedPayload, в хранилище ничего не пишется) и сбой
// подготовки/запуска (в хранилище уже записан FAILED). Транспорт
// отправляет такие сообщения в DLQ без повторной доставки.
package worker
