package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/telemetry"
)

// Worker — процесс платформы выполнения.
//
// Worker потребляет DispatchPayload'ы из одного или нескольких Source
// (каждый Source — отдельный consumer) и передаёт их Handler'у.
// Worker'ы масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди dispatch.
type Worker struct {
	id      string
	handler *Handler
	sources []Source

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	done       chan struct{}
	err        error

	stopped   bool
	stoppedMu sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// ID — идентификатор экземпляра (default: случайный UUID).
	ID string

	// Handler — обработчик payload'ов (обязательно).
	Handler *Handler

	// Sources — consumers; по одному выполнению на Source одновременно.
	Sources []Source

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:      id,
		handler: cfg.Handler,
		sources: cfg.Sources,
		logger:  telemetry.WithComponent(logger, "worker").With("worker_id", id),
	}
}

// ID возвращает идентификатор экземпляра.
func (w *Worker) ID() string {
	return w.id
}

// Start запускает consumers. Не блокирует.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.done = make(chan struct{})

	w.logger.Info("starting worker", "consumers", len(w.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range w.sources {
		g.Go(func() error {
			err := src.Consume(gctx, w.HandleMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer stopped with error", "consumer", i, "error", err)
				return err
			}
			return nil
		})
	}

	go func() {
		w.err = g.Wait()
		close(w.done)
	}()

	w.logger.Info("worker started")
	return nil
}

// Done закрывается, когда все consumers завершились.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err возвращает ошибку первого упавшего consumer'а (после Done).
func (w *Worker) Err() error {
	return w.err
}

// Stop останавливает consumers и ждёт текущие выполнения.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.done != nil {
		<-w.done
	}

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// HandleMessage декодирует тело сообщения и выполняет payload.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	p, err := domain.DecodePayload(body)
	if err != nil {
		telemetry.WorkerRejectedTotal.Inc()
		w.logger.Error("failed to decode dispatch payload", "error", err)
		return err
	}
	return w.handler.Handle(ctx, p)
}
