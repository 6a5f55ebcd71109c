package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
)

// Health — проверка живости.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListTasks возвращает in-flight tasks в порядке отправки.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.executor.InFlight()

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromInFlight(t)
	}

	List(w, result, len(result))
}

// SubmitTask отправляет task worker'у.
// POST /api/v1/tasks
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sub, err := req.ToSubmission()
	if HandleError(w, h.logger, err, "") {
		return
	}

	if h.executor.SlotsAvailable() == 0 {
		TooManyRequests(w, "parallelism limit reached")
		return
	}

	if HandleError(w, h.logger, h.executor.Submit(r.Context(), sub), "") {
		return
	}

	// Без записи in-flight: spawn не удался, task уже сообщена как FAILED.
	if t, ok := h.executor.Lookup(sub.Key.String()); ok {
		Accepted(w, TaskFromInFlight(t))
		return
	}
	Accepted(w, TaskFromKey(sub.Key))
}

// GetTask возвращает task по ключу: запись in-flight и статус из хранилища.
// GET /api/v1/tasks/{key}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseTaskKey(r.PathValue("key"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	encoded := key.String()

	resp := TaskFromKey(key)
	t, inFlight := h.executor.Lookup(encoded)
	if inFlight {
		resp = TaskFromInFlight(t)
	}

	rec, err := h.store.Get(r.Context(), encoded)
	switch {
	case err == nil:
		resp.State = rec
	case errors.Is(err, statestore.ErrNotFound):
		if !inFlight {
			NotFound(w, "task not found")
			return
		}
	default:
		InternalError(w, h.logger, err)
		return
	}

	Success(w, resp)
}

// Sync запускает внеочередную сверку.
// POST /api/v1/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	Success(w, h.executor.Sync(r.Context()))
}

// GetEndpoint возвращает endpoint и загрузку executor'а.
// GET /api/v1/endpoint
func (h *Handler) GetEndpoint(w http.ResponseWriter, _ *http.Request) {
	Success(w, EndpointResponse{
		Endpoint:       h.executor.Endpoint(),
		Parallelism:    h.executor.Parallelism(),
		SlotsAvailable: h.executor.SlotsAvailable(),
		InFlight:       len(h.executor.InFlight()),
	})
}
