// Package api содержит HTTP control API executor'а.
//
// Структура:
//   - handler.go         — Handler с зависимостями (executor, хранилище, журнал)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - task_handler.go    — /tasks, /sync, /endpoint
//   - history_handler.go — /history
//
// Через этот API scheduler (или outpost CLI) отправляет tasks, смотрит
// in-flight и журнал завершённых попыток.
package api
