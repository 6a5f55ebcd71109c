// Package cli реализует инструмент командной строки Outpost.
//
// # Обзор
//
// CLI — клиентская утилита для control API executor'а. Работает через
// HTTP, из внутренних пакетов импортирует только domain (кодек ключей).
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для control API. Инкапсулирует запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8090")
//	tasks, err := client.ListTasks()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: outpost task list --json | jq .
//
// ## Commands
//
//   - task: list, submit, show, sync
//   - key: encode, decode (локально, без API)
//   - endpoint: show
//   - history: list
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
