package executor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
	"github.com/shaiso/Outpost/internal/telemetry"
)

// DefaultParallelism — лимит одновременно отправленных tasks по умолчанию.
const DefaultParallelism = 100

// Spawner запускает worker с payload'ом. Не ждёт выполнения.
type Spawner interface {
	Spawn(ctx context.Context, payload *domain.DispatchPayload) error
}

// Callbacks — вызовы обратно в scheduler.
//
// rec — запись, на основании которой принято решение: терминальный
// статус из хранилища либо синтетическая запись FAILED с кодом -1
// (ошибка spawn, устаревание).
type Callbacks interface {
	OnSuccess(ctx context.Context, key domain.TaskKey, rec *domain.StatusRecord)
	OnFailure(ctx context.Context, key domain.TaskKey, rec *domain.StatusRecord)
}

// EndpointResolver определяет URL execution API при старте
// и освобождает связанные ресурсы (туннель) при остановке.
type EndpointResolver interface {
	Resolve(ctx context.Context) (string, error)
	Close() error
}

// Executor — dispatcher и reconciliation loop.
//
// Executor сам не запускает горутин: Submit и Sync вызывает хост
// (HTTP API и heartbeat). Sync сериализован, поэтому callback по
// одному ключу срабатывает не больше одного раза.
type Executor struct {
	store     statestore.Store
	spawner   Spawner
	callbacks Callbacks
	resolver  EndpointResolver

	endpointEnvVar string
	baseEnv        map[string]string
	parallelism    int
	staleAfter     time.Duration
	now            func() time.Time

	inflight *InFlightSet
	syncMu   sync.Mutex

	mu       sync.RWMutex
	endpoint string
	started  bool
	stopped  bool

	logger *slog.Logger
}

// Config — конфигурация Executor.
type Config struct {
	// Store — общее хранилище статусов (обязательно).
	Store statestore.Store

	// Spawner — транспорт dispatch (обязательно).
	Spawner Spawner

	// Callbacks — вызовы в scheduler (обязательно).
	Callbacks Callbacks

	// Resolver — разрешение endpoint'а при Start.
	// Если nil, используется Endpoint как есть.
	Resolver EndpointResolver

	// Endpoint — заранее известный URL execution API.
	Endpoint string

	// EndpointEnvVar — имя переменной в env payload'а (default: OUTPOST_EXECUTION_API_URL).
	EndpointEnvVar string

	// Env — переменные, добавляемые в каждый payload.
	Env map[string]string

	// Parallelism — лимит для SlotsAvailable (default: 100).
	Parallelism int

	// StaleAfter — через сколько после dispatch task без терминального
	// статуса считается потерянной. 0 — никогда.
	StaleAfter time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	envVar := cfg.EndpointEnvVar
	if envVar == "" {
		envVar = domain.DefaultEndpointEnvVar
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		store:          cfg.Store,
		spawner:        cfg.Spawner,
		callbacks:      cfg.Callbacks,
		resolver:       cfg.Resolver,
		endpoint:       cfg.Endpoint,
		endpointEnvVar: envVar,
		baseEnv:        maps.Clone(cfg.Env),
		parallelism:    parallelism,
		staleAfter:     cfg.StaleAfter,
		now:            now,
		inflight:       NewInFlightSet(),
		logger:         telemetry.WithComponent(logger, "executor"),
	}
}

// Start разрешает и проверяет endpoint. Ошибка — конфигурация
// непригодна, executor использовать нельзя.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrExecutorStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}

	endpoint := e.endpoint
	if e.resolver != nil {
		resolved, err := e.resolver.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve execution api endpoint: %w", err)
		}
		endpoint = resolved
	}
	if endpoint == "" {
		return domain.ErrEndpointNotConfigured
	}
	if err := domain.ValidateEndpoint(endpoint); err != nil {
		return err
	}

	e.endpoint = endpoint
	e.started = true

	e.logger.Info("executor started",
		"endpoint", endpoint,
		"parallelism", e.parallelism,
		"stale_after", e.staleAfter,
	)
	return nil
}

// Shutdown прекращает приём новых tasks и освобождает endpoint.
// Незавершённые tasks остаются в InFlightSet; отмены worker'ов нет.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	if n := e.inflight.Len(); n > 0 {
		e.logger.Warn("shutting down with tasks in flight", "inflight", n)
	}

	if e.resolver != nil {
		if err := e.resolver.Close(); err != nil {
			return fmt.Errorf("close endpoint resolver: %w", err)
		}
	}

	e.logger.Info("executor stopped")
	return nil
}

// Submit отправляет task worker'у.
//
// Ошибки вызывающей стороны (ключ, форма работы, endpoint, состояние
// executor'а) возвращаются сразу, spawn не выполняется. Ошибка spawn
// не возвращается: task сразу сообщается scheduler'у как FAILED
// через OnFailure и в InFlightSet не попадает.
func (e *Executor) Submit(ctx context.Context, sub domain.Submission) error {
	ctx, span := telemetry.Tracer("executor").Start(ctx, "executor.Submit")
	defer span.End()

	endpoint, err := e.readyEndpoint()
	if err != nil {
		telemetry.ExecutorSubmitsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	encoded, err := sub.Key.Encode()
	if err != nil {
		telemetry.ExecutorSubmitsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	span.SetAttributes(attribute.String("task_key", encoded))

	payload := &domain.DispatchPayload{
		TaskKey: encoded,
		Env:     e.payloadEnv(sub.Env, endpoint),
	}
	if err := sub.ApplyWork(payload); err != nil {
		telemetry.ExecutorSubmitsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if !e.inflight.Reserve(encoded) {
		telemetry.ExecutorSubmitsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %s", ErrAlreadyInFlight, encoded)
	}

	logger := telemetry.WithTaskKey(e.logger, encoded)
	if len(sub.ResourceConfig) > 0 {
		logger.Debug("ignoring resource config", "resource_config", sub.ResourceConfig)
	}

	if err := e.spawner.Spawn(ctx, payload); err != nil {
		e.inflight.Release(encoded)
		telemetry.ExecutorSubmitsTotal.WithLabelValues("spawn_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		logger.Error("failed to spawn worker", "error", err)

		e.callbacks.OnFailure(ctx, sub.Key, domain.NewErrorRecord(fmt.Errorf("spawn worker: %w", err)))
		return nil
	}

	// Между успешным spawn и записью ниже есть окно: если процесс упадёт
	// здесь, task выполнится, но сверяться не будет.
	e.inflight.Commit(encoded, sub.Key, e.now())
	telemetry.ExecutorSubmitsTotal.WithLabelValues("spawned").Inc()
	telemetry.ExecutorInFlight.Set(float64(e.inflight.Len()))

	logger.Info("task dispatched")
	return nil
}

func (e *Executor) readyEndpoint() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case e.stopped:
		return "", ErrExecutorStopped
	case !e.started:
		return "", domain.ErrEndpointNotConfigured
	}
	return e.endpoint, nil
}

// payloadEnv: базовые переменные, затем переменные task, затем endpoint.
func (e *Executor) payloadEnv(taskEnv map[string]string, endpoint string) map[string]string {
	env := make(map[string]string, len(e.baseEnv)+len(taskEnv)+1)
	maps.Copy(env, e.baseEnv)
	maps.Copy(env, taskEnv)
	env[e.endpointEnvVar] = endpoint
	return env
}

// Endpoint возвращает разрешённый URL execution API ("" до Start).
func (e *Executor) Endpoint() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return ""
	}
	return e.endpoint
}

// InFlight возвращает незавершённые tasks в порядке отправки.
func (e *Executor) InFlight() []domain.InFlightTask {
	return e.inflight.Snapshot()
}

// Lookup возвращает незавершённую task по ключу.
func (e *Executor) Lookup(encoded string) (domain.InFlightTask, bool) {
	return e.inflight.Get(encoded)
}

// SlotsAvailable — сколько ещё tasks можно отправить до лимита.
func (e *Executor) SlotsAvailable() int {
	return max(e.parallelism-e.inflight.Len()-e.inflight.Reserved(), 0)
}

// Parallelism возвращает лимит одновременно отправленных tasks.
func (e *Executor) Parallelism() int {
	return e.parallelism
}
