package notify

import (
	"context"
	"fmt"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/repo"
)

// HistoryWriter — запись в журнал завершённых tasks.
type HistoryWriter interface {
	Create(ctx context.Context, e *repo.HistoryEntry) error
}

// HistorySink сохраняет события в журнал.
type HistorySink struct {
	w HistoryWriter
}

// NewHistorySink создаёт HistorySink.
func NewHistorySink(w HistoryWriter) *HistorySink {
	return &HistorySink{w: w}
}

func (s *HistorySink) Name() string { return "history" }

func (s *HistorySink) Notify(ctx context.Context, e Event) error {
	entry := &repo.HistoryEntry{
		Key: domain.TaskKey{
			WorkflowID: e.WorkflowID,
			StepID:     e.StepID,
			RunID:      e.RunID,
			Attempt:    e.Attempt,
		},
		EncodedKey: e.TaskKey,
		Outcome:    e.Outcome,
		ReturnCode: e.ReturnCode,
		Error:      e.Error,
		FinishedAt: e.FinishedAt,
	}
	if err := s.w.Create(ctx, entry); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
