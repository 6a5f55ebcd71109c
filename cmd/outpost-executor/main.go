// Outpost Executor — отправляет tasks worker'ам и сверяет их статусы.
//
// Executor:
//   - Принимает tasks по HTTP API и публикует их в очередь dispatch
//   - Периодически читает общее хранилище состояния (heartbeat)
//   - Сообщает терминальные статусы через callbacks
//   - Публикует execution API (локально или через SSH-туннель)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shaiso/Outpost/internal/api"
	"github.com/shaiso/Outpost/internal/app"
	"github.com/shaiso/Outpost/internal/config"
	"github.com/shaiso/Outpost/internal/executor"
	"github.com/shaiso/Outpost/internal/host"
	"github.com/shaiso/Outpost/internal/telemetry"
)

func main() {
	fs := pflag.NewFlagSet("outpost-executor", pflag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	fs.String("http-addr", config.DefaultHTTPAddr, "HTTP listen address")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Int("parallelism", executor.DefaultParallelism, "Max tasks in flight")
	_ = fs.Parse(os.Args[1:])

	v := config.New()
	config.BindFlag(v, "http.addr", fs, "http-addr")
	config.BindFlag(v, "log.level", fs, "log-level")
	config.BindFlag(v, "executor.parallelism", fs, "parallelism")

	cfg, err := config.Load(v, *configFile, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting outpost-executor", "env", cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("outpost-executor failed", "error", err)
		os.Exit(1)
	}
	logger.Info("outpost-executor stopped")
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
	logger.Info("state store ready", "backend", cfg.State.Backend, "namespace", cfg.StateNamespace())

	spawner, err := app.OpenSpawner(ctx, cfg, res, logger)
	if err != nil {
		return err
	}
	logger.Info("dispatch transport ready", "transport", cfg.Dispatch.Transport, "queue", cfg.DispatchQueue())

	callbacks := app.NewCallbacks(cfg, state.History, logger)
	logger.Info("notification sinks", "sinks", callbacks.Sinks())

	// Executor.Shutdown закрывает resolver; Resources закроет его при выходе раньше.
	resolver := app.NewResolver(cfg, logger)
	res.Add("endpoint resolver", resolver.Close)

	exec := executor.New(executor.Config{
		Store:          state.Store,
		Spawner:        spawner,
		Callbacks:      callbacks,
		Resolver:       resolver,
		EndpointEnvVar: cfg.ExecutionAPI.EnvVar,
		Parallelism:    cfg.Executor.Parallelism,
		StaleAfter:     cfg.Executor.StaleAfter,
		Logger:         logger,
	})

	var history api.HistoryLister
	if state.History != nil {
		history = state.History
	}

	handler := api.NewHandler(api.Config{
		Executor: exec,
		Store:    state.Store,
		History:  history,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	heartbeat, err := host.New(host.Config{
		Executor: exec,
		Interval: cfg.Heartbeat.Interval,
		Cron:     cfg.Heartbeat.Cron,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if err := heartbeat.Start(ctx); err != nil {
		return err
	}
	logger.Info("execution api endpoint", "url", exec.Endpoint())

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		return errors.Join(fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err), heartbeat.Stop(stopCtx))
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var errs []error
	if err := heartbeat.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop heartbeat: %w", err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	return errors.Join(errs...)
}
