package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyDelimiter — разделитель полей в каноническом виде TaskKey.
const KeyDelimiter = ":"

// TaskKey — идентичность одной попытки выполнения task.
//
// Ключ неизменяемый: создаётся, когда scheduler передаёт task в executor,
// и удаляется из всех map, когда reconciliation видит терминальный статус.
// Attempt входит в ключ, поэтому два worker'а никогда не пишут один ключ.
type TaskKey struct {
	// WorkflowID — ID workflow (DAG) в scheduler'е.
	WorkflowID string `json:"workflow_id"`

	// StepID — ID шага внутри workflow.
	StepID string `json:"step_id"`

	// RunID — ID запуска workflow.
	RunID string `json:"run_id"`

	// Attempt — номер попытки (начиная с 1).
	Attempt int `json:"attempt"`
}

// NewTaskKey создаёт TaskKey и проверяет инварианты.
func NewTaskKey(workflowID, stepID, runID string, attempt int) (TaskKey, error) {
	k := TaskKey{
		WorkflowID: workflowID,
		StepID:     stepID,
		RunID:      runID,
		Attempt:    attempt,
	}
	if err := k.Validate(); err != nil {
		return TaskKey{}, err
	}
	return k, nil
}

// Validate проверяет, что ключ можно закодировать без потерь.
func (k TaskKey) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"workflow_id", k.WorkflowID},
		{"step_id", k.StepID},
		{"run_id", k.RunID},
	}

	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrMalformedKey, f.name)
		}
		if strings.Contains(f.value, KeyDelimiter) {
			return fmt.Errorf("%w: %s %q contains %q", ErrMalformedKey, f.name, f.value, KeyDelimiter)
		}
	}

	if k.Attempt < 1 {
		return fmt.Errorf("%w: attempt must be >= 1, got %d", ErrMalformedKey, k.Attempt)
	}

	return nil
}

// Encode возвращает канонический вид ключа: workflow:step:run:attempt.
func (k TaskKey) Encode() (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k.String(), nil
}

// String возвращает канонический вид без валидации.
// Для логов; для хранилища используйте Encode.
func (k TaskKey) String() string {
	return strings.Join([]string{k.WorkflowID, k.StepID, k.RunID, strconv.Itoa(k.Attempt)}, KeyDelimiter)
}

// ParseTaskKey разбирает канонический вид обратно в TaskKey.
func ParseTaskKey(s string) (TaskKey, error) {
	parts := strings.Split(s, KeyDelimiter)
	if len(parts) != 4 {
		return TaskKey{}, fmt.Errorf("%w: expected 4 segments, got %d in %q", ErrMalformedKey, len(parts), s)
	}

	attempt, err := strconv.Atoi(parts[3])
	if err != nil {
		return TaskKey{}, fmt.Errorf("%w: attempt %q is not an integer", ErrMalformedKey, parts[3])
	}
	// "01" и "+1" дали бы второй ключ для той же попытки.
	if strconv.Itoa(attempt) != parts[3] {
		return TaskKey{}, fmt.Errorf("%w: attempt %q is not canonical", ErrMalformedKey, parts[3])
	}

	return NewTaskKey(parts[0], parts[1], parts[2], attempt)
}
