// Package telemetry — логирование, метрики и трассировка Outpost.
//
//   - logging.go — slog-логгер из log.level / log.format
//   - metrics.go — Prometheus-коллекторы executor'а, worker'а, API и notify
//   - tracing.go — otel tracer (no-op, пока не установлен provider)
//
// Оба сервиса отдают метрики на /metrics.
package telemetry
