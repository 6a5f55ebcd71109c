package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
)

// StateRepo — statestore.Store поверх таблицы task_states.
type StateRepo struct {
	pool *pgxpool.Pool
}

var _ statestore.Store = (*StateRepo)(nil)

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Get возвращает статус task по ключу.
func (r *StateRepo) Get(ctx context.Context, key string) (*domain.StatusRecord, error) {
	query := `
		SELECT status, return_code, stdout_tail, stderr_tail, error, updated_at
		FROM task_states
		WHERE task_key = $1
	`
	var rec domain.StatusRecord
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&rec.Status,
		&rec.ReturnCode,
		&rec.StdoutTail,
		&rec.StderrTail,
		&rec.Error,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, statestore.ErrNotFound
		}
		return nil, fmt.Errorf("get state: %w", err)
	}
	return &rec, nil
}

// Set создаёт или перезаписывает статус task.
func (r *StateRepo) Set(ctx context.Context, key string, rec *domain.StatusRecord) error {
	query := `
		INSERT INTO task_states (task_key, status, return_code, stdout_tail, stderr_tail, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_key) DO UPDATE
		SET status = EXCLUDED.status,
		    return_code = EXCLUDED.return_code,
		    stdout_tail = EXCLUDED.stdout_tail,
		    stderr_tail = EXCLUDED.stderr_tail,
		    error = EXCLUDED.error,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		key,
		rec.Status,
		rec.ReturnCode,
		rec.StdoutTail,
		rec.StderrTail,
		rec.Error,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Delete удаляет статус task.
func (r *StateRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM task_states WHERE task_key = $1`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
