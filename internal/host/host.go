package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Outpost/internal/executor"
)

// DefaultInterval — период heartbeat по умолчанию.
const DefaultInterval = 5 * time.Second

// ErrAlreadyRunning — Start вызван повторно.
var ErrAlreadyRunning = errors.New("heartbeat already running")

// cronParser принимает 5-польные выражения и дескрипторы (@every, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Executor — то, чем управляет heartbeat.
type Executor interface {
	Start(ctx context.Context) error
	Sync(ctx context.Context) executor.SyncResult
	Shutdown(ctx context.Context) error
}

// Config — конфигурация Heartbeat.
type Config struct {
	Executor Executor

	// Interval — период Sync (default: 5s). Игнорируется, если задан Cron.
	Interval time.Duration

	// Cron — расписание Sync в формате cron.
	Cron string

	Logger *slog.Logger
}

// Heartbeat периодически сверяет in-flight tasks.
type Heartbeat struct {
	exec     Executor
	interval time.Duration
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New создаёт Heartbeat. Возвращает ошибку для некорректного Cron.
func New(cfg Config) (*Heartbeat, error) {
	h := &Heartbeat{
		exec:     cfg.Executor,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
	if h.interval <= 0 {
		h.interval = DefaultInterval
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "heartbeat")

	if cfg.Cron != "" {
		sched, err := cronParser.Parse(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", cfg.Cron, err)
		}
		h.schedule = sched
	}

	return h, nil
}

// Start запускает executor и цикл heartbeat.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return ErrAlreadyRunning
	}

	if err := h.exec.Start(ctx); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})

	go h.loop(loopCtx, h.done)

	h.logger.Info("heartbeat started", "interval", h.interval, "cron", h.schedule != nil)
	return nil
}

// Stop останавливает цикл, дожидается текущего Sync и останавливает executor.
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	// Executor останавливается и при истёкшем ctx: Shutdown закрывает туннель.
	var waitErr error
	select {
	case <-done:
		h.logger.Info("heartbeat stopped")
	case <-ctx.Done():
		waitErr = fmt.Errorf("wait for running sync: %w", ctx.Err())
		h.logger.Warn("heartbeat stop timed out, sync still running")
	}

	return errors.Join(waitErr, h.exec.Shutdown(ctx))
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(h.next(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			h.Beat(ctx)
		}
	}
}

// next возвращает задержку до следующего тика.
func (h *Heartbeat) next(now time.Time) time.Duration {
	if h.schedule == nil {
		return h.interval
	}
	return h.schedule.Next(now).Sub(now)
}

// Beat выполняет один проход сверки.
func (h *Heartbeat) Beat(ctx context.Context) executor.SyncResult {
	res := h.exec.Sync(ctx)

	switch {
	case res.Errors > 0:
		h.logger.Warn("heartbeat completed with store errors",
			"checked", res.Checked,
			"reconciled", res.Reconciled(),
			"errors", res.Errors,
		)
	case res.Reconciled() > 0:
		h.logger.Info("heartbeat completed",
			"checked", res.Checked,
			"succeeded", res.Succeeded,
			"failed", res.Failed,
			"stale", res.Stale,
			"pending", res.Pending,
		)
	default:
		h.logger.Debug("heartbeat completed", "checked", res.Checked, "pending", res.Pending)
	}

	return res
}
