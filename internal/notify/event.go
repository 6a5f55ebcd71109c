package notify

import (
	"time"

	"github.com/shaiso/Outpost/internal/domain"
)

// Event — уведомление о завершении попытки.
type Event struct {
	TaskKey    string            `json:"task_key"`
	WorkflowID string            `json:"workflow_id"`
	StepID     string            `json:"step_id"`
	RunID      string            `json:"run_id"`
	Attempt    int               `json:"attempt"`
	Outcome    domain.TaskStatus `json:"outcome"`
	ReturnCode int               `json:"return_code"`
	Error      string            `json:"error,omitempty"`
	StdoutTail string            `json:"stdout_tail,omitempty"`
	StderrTail string            `json:"stderr_tail,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// NewEvent собирает Event из ключа и записи статуса.
// Без записи outcome считается FAILED с кодом -1.
func NewEvent(key domain.TaskKey, rec *domain.StatusRecord) Event {
	e := Event{
		TaskKey:    key.String(),
		WorkflowID: key.WorkflowID,
		StepID:     key.StepID,
		RunID:      key.RunID,
		Attempt:    key.Attempt,
		Outcome:    domain.TaskStatusFailed,
		ReturnCode: rec.Code(),
		FinishedAt: time.Now().UTC(),
	}
	if rec == nil {
		return e
	}

	if rec.Status.IsTerminal() {
		e.Outcome = rec.Status
	}
	e.Error = rec.Error
	e.StdoutTail = rec.StdoutTail
	e.StderrTail = rec.StderrTail
	if !rec.UpdatedAt.IsZero() {
		e.FinishedAt = rec.UpdatedAt
	}
	return e
}
