package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
	"github.com/shaiso/Outpost/internal/telemetry"
)

// SyncResult — итог одного прохода Sync.
type SyncResult struct {
	Checked   int `json:"checked"`
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Stale     int `json:"stale"`
	Errors    int `json:"errors"`
}

// Reconciled — сколько tasks завершено за проход.
func (r SyncResult) Reconciled() int {
	return r.Succeeded + r.Failed + r.Stale
}

// Sync сверяет InFlightSet с общим хранилищем.
//
// Для каждой записи читается статус:
//   - ошибка чтения — запись остаётся до следующего прохода
//   - нет ключа или RUNNING — запись остаётся
//   - SUCCESS — OnSuccess
//   - FAILED — OnFailure
//
// После прохода завершённые ключи удаляются из InFlightSet, затем из
// хранилища (ошибка удаления только логируется). При пустом
// InFlightSet хранилище не читается.
func (e *Executor) Sync(ctx context.Context) SyncResult {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	var result SyncResult

	tasks := e.inflight.Snapshot()
	if len(tasks) == 0 {
		return result
	}

	ctx, span := telemetry.Tracer("executor").Start(ctx, "executor.Sync")
	defer span.End()
	start := time.Now()

	now := e.now()
	done := make([]string, 0)

	for i := range tasks {
		task := &tasks[i]
		result.Checked++
		logger := telemetry.WithTaskKey(e.logger, task.EncodedKey)

		rec, err := e.store.Get(ctx, task.EncodedKey)
		if err != nil && !errors.Is(err, statestore.ErrNotFound) {
			result.Errors++
			telemetry.ExecutorStoreErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("failed to read task status, will retry", "error", err)
			continue
		}

		if rec == nil || !rec.Status.IsTerminal() {
			if rec != nil && rec.Status != domain.TaskStatusRunning {
				logger.Warn("unknown task status, treating as running", "status", rec.Status)
			}
			if e.isStale(task, now) {
				result.Stale++
				e.reportStale(ctx, task, rec, now)
				done = append(done, task.EncodedKey)
				continue
			}
			result.Pending++
			continue
		}

		switch rec.Status {
		case domain.TaskStatusSuccess:
			result.Succeeded++
			logger.Info("task succeeded")
			e.callbacks.OnSuccess(ctx, task.Key, rec)
		case domain.TaskStatusFailed:
			result.Failed++
			logger.Warn("task failed",
				"return_code", rec.Code(),
				"error", rec.Error,
				"stderr_tail", domain.Tail(rec.StderrTail, 200),
			)
			e.callbacks.OnFailure(ctx, task.Key, rec)
		}
		telemetry.ExecutorReconciledTotal.WithLabelValues(string(rec.Status)).Inc()
		done = append(done, task.EncodedKey)
	}

	e.inflight.Remove(done...)
	for _, key := range done {
		if err := e.store.Delete(ctx, key); err != nil {
			telemetry.ExecutorStoreErrorsTotal.WithLabelValues("delete").Inc()
			telemetry.WithTaskKey(e.logger, key).Warn("failed to delete task status", "error", err)
		}
	}

	telemetry.ExecutorInFlight.Set(float64(e.inflight.Len()))
	telemetry.ExecutorSyncDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("checked", result.Checked),
		attribute.Int("reconciled", result.Reconciled()),
	)

	if result.Reconciled() > 0 || result.Errors > 0 {
		e.logger.Info("sync completed",
			"checked", result.Checked,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"stale", result.Stale,
			"errors", result.Errors,
			"inflight", e.inflight.Len(),
		)
	}
	return result
}

func (e *Executor) isStale(task *domain.InFlightTask, now time.Time) bool {
	return e.staleAfter > 0 && task.Age(now) > e.staleAfter
}

func (e *Executor) reportStale(ctx context.Context, task *domain.InFlightTask, rec *domain.StatusRecord, now time.Time) {
	last := "absent"
	if rec != nil {
		last = string(rec.Status)
	}
	err := fmt.Errorf("stale: no terminal status within %s (last status: %s)", e.staleAfter, last)

	telemetry.ExecutorReconciledTotal.WithLabelValues("STALE").Inc()
	telemetry.WithTaskKey(e.logger, task.EncodedKey).Warn("task is stale, failing it",
		"age", task.Age(now),
		"last_status", last,
	)
	e.callbacks.OnFailure(ctx, task.Key, domain.NewErrorRecord(err))
}
