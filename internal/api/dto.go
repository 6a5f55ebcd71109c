package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Outpost/internal/domain"
)

// Task DTOs

// SubmitTaskRequest — запрос на отправку task.
// Ровно одно из Command и Workload должно быть задано.
type SubmitTaskRequest struct {
	WorkflowID     string            `json:"workflow_id"`
	StepID         string            `json:"step_id"`
	RunID          string            `json:"run_id"`
	Attempt        int               `json:"attempt"`
	Command        []string          `json:"command,omitempty"`
	Workload       json.RawMessage   `json:"workload,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	ResourceConfig map[string]any    `json:"resource_config,omitempty"`
}

// ToSubmission конвертирует запрос в domain.Submission.
func (r SubmitTaskRequest) ToSubmission() (domain.Submission, error) {
	key, err := domain.NewTaskKey(r.WorkflowID, r.StepID, r.RunID, r.Attempt)
	if err != nil {
		return domain.Submission{}, err
	}

	sub := domain.Submission{
		Key:            key,
		Env:            r.Env,
		ResourceConfig: r.ResourceConfig,
	}

	hasCommand := len(r.Command) > 0
	hasWorkload := len(r.Workload) > 0 && string(r.Workload) != "null"
	switch {
	case hasCommand && hasWorkload:
		return domain.Submission{}, fmt.Errorf("%w: both command and workload given", domain.ErrUnsupportedWorkload)
	case hasCommand:
		sub.Work = r.Command
	case hasWorkload:
		sub.Work = r.Workload
	default:
		return domain.Submission{}, fmt.Errorf("%w: command or workload is required", domain.ErrUnsupportedWorkload)
	}

	return sub, nil
}

// TaskResponse — ответ с task.
type TaskResponse struct {
	TaskKey     string               `json:"task_key"`
	WorkflowID  string               `json:"workflow_id"`
	StepID      string               `json:"step_id"`
	RunID       string               `json:"run_id"`
	Attempt     int                  `json:"attempt"`
	InFlight    bool                 `json:"in_flight"`
	SubmittedAt *time.Time           `json:"submitted_at,omitempty"`
	State       *domain.StatusRecord `json:"state,omitempty"`
}

// TaskFromKey строит TaskResponse по ключу.
func TaskFromKey(key domain.TaskKey) TaskResponse {
	return TaskResponse{
		TaskKey:    key.String(),
		WorkflowID: key.WorkflowID,
		StepID:     key.StepID,
		RunID:      key.RunID,
		Attempt:    key.Attempt,
	}
}

// TaskFromInFlight конвертирует domain.InFlightTask в TaskResponse.
func TaskFromInFlight(t domain.InFlightTask) TaskResponse {
	resp := TaskFromKey(t.Key)
	resp.TaskKey = t.EncodedKey
	resp.InFlight = true
	submitted := t.SubmittedAt
	resp.SubmittedAt = &submitted
	return resp
}

// Endpoint DTOs

// EndpointResponse — состояние executor'а.
type EndpointResponse struct {
	Endpoint       string `json:"endpoint"`
	Parallelism    int    `json:"parallelism"`
	SlotsAvailable int    `json:"slots_available"`
	InFlight       int    `json:"in_flight"`
}
