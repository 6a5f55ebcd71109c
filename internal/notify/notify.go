package notify

import (
	"context"
	"log/slog"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/telemetry"
)

// Sink — получатель уведомлений.
type Sink interface {
	// Name — метка для логов и метрик.
	Name() string
	Notify(ctx context.Context, e Event) error
}

// Callbacks раздаёт события завершения по всем sink'ам.
type Callbacks struct {
	sinks  []Sink
	logger *slog.Logger
}

// New создаёт Callbacks.
func New(logger *slog.Logger, sinks ...Sink) *Callbacks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Callbacks{
		sinks:  sinks,
		logger: logger.With("component", "notify"),
	}
}

// Sinks возвращает имена подключённых sink'ов.
func (c *Callbacks) Sinks() []string {
	names := make([]string, len(c.sinks))
	for i, s := range c.sinks {
		names[i] = s.Name()
	}
	return names
}

// OnSuccess вызывается executor'ом для SUCCESS.
func (c *Callbacks) OnSuccess(ctx context.Context, key domain.TaskKey, rec *domain.StatusRecord) {
	c.dispatch(ctx, NewEvent(key, rec))
}

// OnFailure вызывается executor'ом для FAILED, ошибки spawn и устаревания.
func (c *Callbacks) OnFailure(ctx context.Context, key domain.TaskKey, rec *domain.StatusRecord) {
	e := NewEvent(key, rec)
	e.Outcome = domain.TaskStatusFailed
	c.dispatch(ctx, e)
}

func (c *Callbacks) dispatch(ctx context.Context, e Event) {
	for _, s := range c.sinks {
		if err := s.Notify(ctx, e); err != nil {
			telemetry.NotifyDeliveriesTotal.WithLabelValues(s.Name(), "error").Inc()
			c.logger.Error("notification failed",
				"sink", s.Name(),
				"task_key", e.TaskKey,
				"outcome", e.Outcome,
				"error", err,
			)
			continue
		}
		telemetry.NotifyDeliveriesTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// LogSink пишет события в лог.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Outcome != domain.TaskStatusSuccess {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "task finished",
		"task_key", e.TaskKey,
		"outcome", e.Outcome,
		"return_code", e.ReturnCode,
		"error", e.Error,
	)
	return nil
}
