// Package notify доставляет результаты завершённых tasks обратно scheduler'у.
//
// Callbacks реализует executor.Callbacks и раздаёт Event по набору Sink:
//
//   - LogSink — структурированный лог
//   - WebhookSink — HTTP POST с повторами
//   - HistorySink — журнал в PostgreSQL
//
// Ошибка одного sink не мешает остальным.
package notify
