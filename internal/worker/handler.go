package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/Outpost/internal/archive"
	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
	"github.com/shaiso/Outpost/internal/telemetry"
)

// DefaultWorkloadCommand — команда для режима workload.
// Сериализованный workload добавляется последним аргументом.
var DefaultWorkloadCommand = []string{"python", "-m", "airflow.sdk.execution_time.execute_workload", "--json-string"}

// statusWriteTimeout — таймаут записи статуса, не зависящий от отмены ctx.
const statusWriteTimeout = 10 * time.Second

// Handler выполняет один DispatchPayload и публикует результат в хранилище.
type Handler struct {
	store           statestore.Store
	runner          Runner
	archive         archive.Archive
	workloadCommand []string
	environ         func() []string
	logger          *slog.Logger
}

// HandlerConfig — конфигурация Handler.
type HandlerConfig struct {
	// Store — общее хранилище статусов (обязательно).
	Store statestore.Store

	// Runner — запуск дочернего процесса (default: ExecRunner).
	Runner Runner

	// Archive — архив логов (опционально; nil — без архива).
	Archive archive.Archive

	// WorkloadCommand — команда для режима workload (default: DefaultWorkloadCommand).
	WorkloadCommand []string

	// Environ — окружение worker'а (default: os.Environ).
	Environ func() []string

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	runner := cfg.Runner
	if runner == nil {
		runner = &ExecRunner{KillGrace: 10 * time.Second}
	}

	workloadCommand := cfg.WorkloadCommand
	if len(workloadCommand) == 0 {
		workloadCommand = DefaultWorkloadCommand
	}

	environ := cfg.Environ
	if environ == nil {
		environ = os.Environ
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:           cfg.Store,
		runner:          runner,
		archive:         cfg.Archive,
		workloadCommand: workloadCommand,
		environ:         environ,
		logger:          logger,
	}
}

// Handle выполняет payload до конца.
//
// Порядок:
//  1. Валидация payload (ошибка — ErrMalformedPayload, в хранилище ничего не пишется)
//  2. Слияние env (окружение worker'а имеет приоритет)
//  3. Путь архива (ошибка — продолжаем без архива)
//  4. RUNNING в хранилище
//  5. Запуск дочернего процесса
//  6. Архив stdout/stderr (best-effort)
//  7. SUCCESS/FAILED с кодом выхода и хвостами вывода
//
// Ошибка подготовки или запуска записывает FAILED с кодом -1 и
// возвращается вызывающему, чтобы платформа учла сбой.
// Ненулевой код выхода ошибкой не считается.
func (h *Handler) Handle(ctx context.Context, p *domain.DispatchPayload) error {
	if err := p.Validate(); err != nil {
		telemetry.WorkerRejectedTotal.Inc()
		h.logger.Error("rejecting malformed payload", "task_key", p.TaskKey, "error", err)
		return err
	}

	mode, _ := p.Mode()
	key, _ := domain.ParseTaskKey(p.TaskKey)
	logger := telemetry.WithTaskKey(h.logger, p.TaskKey)

	ctx, span := telemetry.Tracer("worker").Start(ctx, "worker.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("task_key", p.TaskKey),
		attribute.String("mode", string(mode)),
	)

	env := MergeEnv(h.environ(), p.Env)
	logPath := h.archivePath(logger, p, key, mode)

	argv, err := h.argv(p, mode)
	if err != nil {
		return h.fail(ctx, logger, p.TaskKey, err)
	}

	if err := h.store.Set(ctx, p.TaskKey, domain.NewRunningRecord()); err != nil {
		return h.fail(ctx, logger, p.TaskKey, fmt.Errorf("%w: running: %v", ErrStatusWrite, err))
	}

	logger.Info("task started", "mode", mode, "log_path", logPath)

	res, err := h.runner.Run(ctx, argv, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return h.fail(ctx, logger, p.TaskKey, err)
	}
	telemetry.WorkerExecutionDuration.Observe(res.Duration.Seconds())

	if logPath != "" {
		h.writeArchive(ctx, logger, logPath, res)
	}

	rec := domain.NewExitRecord(res.ExitCode, res.Stdout, res.Stderr)
	if err := h.setStatus(ctx, p.TaskKey, rec); err != nil {
		logger.Error("failed to write terminal status", "error", err)
		return fmt.Errorf("%w: terminal: %v", ErrStatusWrite, err)
	}

	telemetry.WorkerExecutionsTotal.WithLabelValues(string(rec.Status)).Inc()
	span.SetAttributes(attribute.Int("return_code", res.ExitCode))

	if rec.Status == domain.TaskStatusSuccess {
		logger.Info("task succeeded", "duration", res.Duration)
	} else {
		logger.Warn("task failed", "return_code", res.ExitCode, "duration", res.Duration)
	}
	return nil
}

// argv собирает командную строку по режиму.
func (h *Handler) argv(p *domain.DispatchPayload, mode domain.WorkMode) ([]string, error) {
	if mode == domain.WorkModeCommand {
		return p.Command, nil
	}
	if len(h.workloadCommand) == 0 {
		return nil, ErrNoWorkloadCommand
	}
	argv := make([]string, 0, len(h.workloadCommand)+1)
	argv = append(argv, h.workloadCommand...)
	return append(argv, string(p.Workload)), nil
}

// archivePath возвращает путь архива или "", если его нельзя построить.
func (h *Handler) archivePath(logger *slog.Logger, p *domain.DispatchPayload, key domain.TaskKey, mode domain.WorkMode) string {
	if h.archive == nil {
		return ""
	}

	identity := key
	if mode == domain.WorkModeWorkload {
		var err error
		identity, err = domain.WorkloadIdentity(p.Workload)
		if err != nil {
			logger.Warn("cannot derive archive path, logs will not be archived", "error", err)
			return ""
		}
	}

	path, err := archive.Path(identity)
	if err != nil {
		logger.Warn("cannot derive archive path, logs will not be archived", "error", err)
		return ""
	}
	return path
}

func (h *Handler) writeArchive(ctx context.Context, logger *slog.Logger, path string, res *Result) {
	if err := h.archive.Write(ctx, path, archive.Format(res.Stdout, res.Stderr)); err != nil {
		telemetry.WorkerArchiveFailuresTotal.Inc()
		logger.Warn("failed to archive logs", "log_path", path, "error", err)
	}
}

// fail пишет FAILED с кодом -1 и возвращает исходную ошибку.
func (h *Handler) fail(ctx context.Context, logger *slog.Logger, taskKey string, cause error) error {
	logger.Error("task execution error", "error", cause)
	telemetry.WorkerExecutionsTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()

	if err := h.setStatus(ctx, taskKey, domain.NewErrorRecord(cause)); err != nil {
		logger.Error("failed to write failure status", "error", err)
	}
	return cause
}

// setStatus пишет статус даже после отмены ctx (остановка worker'а).
func (h *Handler) setStatus(ctx context.Context, taskKey string, rec *domain.StatusRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	return h.store.Set(ctx, taskKey, rec)
}
