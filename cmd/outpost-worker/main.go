// Outpost Worker — выполняет отправленные tasks.
//
// Worker:
//   - Получает DispatchPayload из очереди dispatch (RabbitMQ или Kafka)
//   - Запускает команду или workload дочерним процессом
//   - Записывает RUNNING и терминальный статус в общее хранилище
//   - Архивирует stdout/stderr (файл или S3)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/shaiso/Outpost/internal/app"
	"github.com/shaiso/Outpost/internal/config"
	"github.com/shaiso/Outpost/internal/telemetry"
	"github.com/shaiso/Outpost/internal/worker"
)

func main() {
	fs := pflag.NewFlagSet("outpost-worker", pflag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	fs.String("http-addr", ":9090", "Health and metrics listen address")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Int("concurrency", 4, "Number of concurrent consumers")
	_ = fs.Parse(os.Args[1:])

	v := config.New()
	v.SetDefault("http.addr", ":9090")
	config.BindFlag(v, "http.addr", fs, "http-addr")
	config.BindFlag(v, "log.level", fs, "log-level")
	config.BindFlag(v, "worker.concurrency", fs, "concurrency")

	cfg, err := config.Load(v, *configFile, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting outpost-worker", "env", cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("outpost-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("outpost-worker stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res := app.NewResources(logger)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	state, err := app.OpenState(ctx, cfg, res)
	if err != nil {
		return err
	}

	logs, err := app.OpenArchive(ctx, cfg)
	if err != nil {
		return err
	}

	sources, err := app.OpenSources(ctx, cfg, res, logger)
	if err != nil {
		return err
	}

	handler := worker.NewHandler(worker.HandlerConfig{
		Store:           state.Store,
		Runner:          &worker.ExecRunner{},
		Archive:         logs,
		WorkloadCommand: cfg.Worker.WorkloadCommand,
		Logger:          logger,
	})

	w := worker.New(worker.Config{
		Handler: handler,
		Sources: sources,
		Logger:  logger,
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или падение всех consumers
	var runErr error
	select {
	case <-ctx.Done():
	case <-w.Done():
		runErr = w.Err()
	}

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown http server: %w", err))
	}
	return runErr
}
