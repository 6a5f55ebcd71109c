// Package host реализует heartbeat scheduler'а: периодический вызов
// Executor.Sync, пока executor работает.
//
// Период задаётся интервалом или cron-выражением:
//
//	h, err := host.New(host.Config{
//	    Executor: exec,
//	    Interval: 5 * time.Second, // или Cron: "*/1 * * * *"
//	    Logger:   logger,
//	})
//	if err := h.Start(ctx); err != nil { ... }
//	defer h.Stop(ctx)
//
// Start запускает executor (разрешение endpoint), Stop останавливает
// цикл и вызывает Executor.Shutdown.
package host
