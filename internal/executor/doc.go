// Package executor — сторона scheduler'а: dispatch tasks и сверка статусов.
//
// # Обзор
//
// Executor реализует операции, которые scheduler вызывает у плагина:
//
//	Start(ctx)     — разрешить endpoint execution API (однократно)
//	Submit(ctx, s) — отправить task worker'у, запомнить в InFlightSet
//	Sync(ctx)      — прочитать статусы, вызвать OnSuccess/OnFailure
//	Shutdown(ctx)  — прекратить приём, закрыть туннель
//
// Прямого канала между executor'ом и worker'ом нет. Worker пишет
// статус в statestore.Store, executor периодически его читает.
//
// # Жизненный цикл task
//
//	Submit ──spawn ok──▶ InFlightSet ──Sync: SUCCESS──▶ OnSuccess, удалить
//	   │                     │         ──Sync: FAILED───▶ OnFailure, удалить
//	   │                     │         ──Sync: RUNNING / нет ключа──▶ ждать
//	   └──spawn error──▶ OnFailure (в InFlightSet не попадает)
//
// # Устаревание
//
// По умолчанию task без терминального статуса ждёт бесконечно.
// Config.StaleAfter > 0 включает таймаут: такая task сообщается как
// FAILED с ошибкой "stale: ..." и удаляется из InFlightSet.
//
// # Известное окно
//
// Spawn выполняется до записи в InFlightSet. Если процесс упадёт между
// ними, task выполнится, но никогда не будет сверена.
package executor
