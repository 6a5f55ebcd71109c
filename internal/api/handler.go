package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/executor"
	"github.com/shaiso/Outpost/internal/repo"
	"github.com/shaiso/Outpost/internal/statestore"
)

// Executor — операции executor'а, доступные через API.
type Executor interface {
	Submit(ctx context.Context, sub domain.Submission) error
	Sync(ctx context.Context) executor.SyncResult
	InFlight() []domain.InFlightTask
	Lookup(encoded string) (domain.InFlightTask, bool)
	SlotsAvailable() int
	Parallelism() int
	Endpoint() string
}

// HistoryLister — чтение журнала завершённых tasks.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]repo.HistoryEntry, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	executor Executor
	store    statestore.Store
	history  HistoryLister
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Executor Executor
	Store    statestore.Store
	History  HistoryLister // опционально
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		executor: cfg.Executor,
		store:    cfg.Store,
		history:  cfg.History,
		logger:   logger,
	}
}
