package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WorkMode — форма единицы работы в payload.
type WorkMode string

const (
	// WorkModeCommand — готовый argv для дочернего процесса.
	WorkModeCommand WorkMode = "command"

	// WorkModeWorkload — сериализованный структурированный workload.
	WorkModeWorkload WorkMode = "workload"
)

// DispatchPayload — сообщение, которое получает worker.
//
// Ровно одно из Command / Workload заполнено. Worker различает режимы
// по форме payload, а не по TaskKey.
type DispatchPayload struct {
	// TaskKey — канонический ключ (workflow:step:run:attempt).
	TaskKey string `json:"task_key"`

	// Command — argv для запуска (режим command).
	Command []string `json:"command,omitempty"`

	// Workload — JSON workload (режим workload).
	Workload json.RawMessage `json:"workload,omitempty"`

	// Env — переменные окружения для дочернего процесса.
	// Окружение worker'а имеет приоритет при конфликте.
	Env map[string]string `json:"env,omitempty"`
}

// Mode определяет режим по форме payload.
func (p *DispatchPayload) Mode() (WorkMode, error) {
	hasCommand := len(p.Command) > 0
	hasWorkload := len(bytes.TrimSpace(p.Workload)) > 0 && !bytes.Equal(bytes.TrimSpace(p.Workload), []byte("null"))

	switch {
	case hasCommand && hasWorkload:
		return "", fmt.Errorf("%w: both command and workload are set", ErrMalformedPayload)
	case hasCommand:
		return WorkModeCommand, nil
	case hasWorkload:
		return WorkModeWorkload, nil
	default:
		return "", fmt.Errorf("%w: work is missing", ErrMalformedPayload)
	}
}

// Validate проверяет ключ и форму работы.
func (p *DispatchPayload) Validate() error {
	if p.TaskKey == "" {
		return fmt.Errorf("%w: task_key is missing", ErrMalformedPayload)
	}
	if _, err := ParseTaskKey(p.TaskKey); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := p.Mode(); err != nil {
		return err
	}
	if len(p.Workload) > 0 && !json.Valid(p.Workload) {
		return fmt.Errorf("%w: workload is not valid JSON", ErrMalformedPayload)
	}
	return nil
}

// DecodePayload разбирает JSON payload и валидирует его.
func DecodePayload(data []byte) (*DispatchPayload, error) {
	var p DispatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Workload — структурированный дескриптор работы от scheduler'а.
//
// Содержимое непрозрачно для Outpost, кроме блока "ti",
// из которого берётся идентичность task для пути архива логов.
type Workload struct {
	Raw json.RawMessage
}

// workloadIdentity — блок "ti" внутри workload.
type workloadIdentity struct {
	TI *struct {
		WorkflowID string `json:"workflow_id"`
		StepID     string `json:"step_id"`
		RunID      string `json:"run_id"`
		Attempt    int    `json:"attempt"`
	} `json:"ti"`
}

// NewWorkload сериализует произвольный дескриптор в Workload.
func NewWorkload(v any) (*Workload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedWorkload, err)
	}
	return &Workload{Raw: raw}, nil
}

// Identity извлекает TaskKey из блока "ti".
func (w *Workload) Identity() (TaskKey, error) {
	return WorkloadIdentity(w.Raw)
}

// WorkloadIdentity извлекает TaskKey из сырого JSON workload.
func WorkloadIdentity(raw json.RawMessage) (TaskKey, error) {
	var id workloadIdentity
	if err := json.Unmarshal(raw, &id); err != nil {
		return TaskKey{}, fmt.Errorf("decode workload: %w", err)
	}
	if id.TI == nil {
		return TaskKey{}, fmt.Errorf("%w: workload has no ti block", ErrMalformedKey)
	}
	return NewTaskKey(id.TI.WorkflowID, id.TI.StepID, id.TI.RunID, id.TI.Attempt)
}
