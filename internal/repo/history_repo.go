package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Outpost/internal/domain"
)

// HistoryEntry — запись о завершённой task.
type HistoryEntry struct {
	ID         uuid.UUID         `json:"id"`
	Key        domain.TaskKey    `json:"key"`
	EncodedKey string            `json:"task_key"`
	Outcome    domain.TaskStatus `json:"outcome"`
	ReturnCode int               `json:"return_code"`
	Error      string            `json:"error,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// HistoryRepo — журнал завершённых tasks.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

// NewHistoryRepo создаёт новый HistoryRepo.
func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Create добавляет запись в журнал. Пустой ID заполняется.
func (r *HistoryRepo) Create(ctx context.Context, e *HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO task_history (id, task_key, workflow_id, step_id, run_id, attempt, outcome, return_code, error, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.EncodedKey,
		e.Key.WorkflowID,
		e.Key.StepID,
		e.Key.RunID,
		e.Key.Attempt,
		e.Outcome,
		e.ReturnCode,
		e.Error,
		e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListRecent возвращает последние записи, новые первыми.
func (r *HistoryRepo) ListRecent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, task_key, workflow_id, step_id, run_id, attempt, outcome, return_code, error, finished_at
		FROM task_history
		ORDER BY finished_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanHistory(rows pgx.Rows) (*HistoryEntry, error) {
	var e HistoryEntry
	err := rows.Scan(
		&e.ID,
		&e.EncodedKey,
		&e.Key.WorkflowID,
		&e.Key.StepID,
		&e.Key.RunID,
		&e.Key.Attempt,
		&e.Outcome,
		&e.ReturnCode,
		&e.Error,
		&e.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return &e, nil
}
