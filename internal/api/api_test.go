package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/executor"
	"github.com/shaiso/Outpost/internal/repo"
	"github.com/shaiso/Outpost/internal/statestore"
)

type fakeSpawner struct {
	err      error
	payloads []*domain.DispatchPayload
}

func (s *fakeSpawner) Spawn(_ context.Context, p *domain.DispatchPayload) error {
	s.payloads = append(s.payloads, p)
	return s.err
}

type countingCallbacks struct {
	success, failure int
}

func (c *countingCallbacks) OnSuccess(context.Context, domain.TaskKey, *domain.StatusRecord) {
	c.success++
}

func (c *countingCallbacks) OnFailure(context.Context, domain.TaskKey, *domain.StatusRecord) {
	c.failure++
}

type fakeHistory struct {
	entries []repo.HistoryEntry
	limit   int
	err     error
}

func (f *fakeHistory) ListRecent(_ context.Context, limit int) ([]repo.HistoryEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

type fixture struct {
	store     *statestore.MemoryStore
	spawner   *fakeSpawner
	callbacks *countingCallbacks
	exec      *executor.Executor
	history   *fakeHistory
	server    *httptest.Server
}

func newFixture(t *testing.T, parallelism int) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:     statestore.NewMemoryStore(),
		spawner:   &fakeSpawner{},
		callbacks: &countingCallbacks{},
		history:   &fakeHistory{},
	}
	f.exec = executor.New(executor.Config{
		Store:       f.store,
		Spawner:     f.spawner,
		Callbacks:   f.callbacks,
		Endpoint:    "http://scheduler.internal:8080/execution/",
		Parallelism: parallelism,
		Logger:      logger,
	})
	require.NoError(t, f.exec.Start(context.Background()))

	mux := http.NewServeMux()
	NewHandler(Config{
		Executor: f.exec,
		Store:    f.store,
		History:  f.history,
		Logger:   logger,
	}).RegisterRoutes(mux)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func submitBody() SubmitTaskRequest {
	return SubmitTaskRequest{
		WorkflowID: "etl",
		StepID:     "load",
		RunID:      "run42",
		Attempt:    1,
		Command:    []string{"echo", "hi"},
		Env:        map[string]string{"A": "1"},
	}
}

func decodeError(t *testing.T, data []byte) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp.Error
}

func TestSubmitTask(t *testing.T) {
	f := newFixture(t, 10)

	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))

	var out struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "etl:load:run42:1", out.Data.TaskKey)
	assert.True(t, out.Data.InFlight)
	assert.NotNil(t, out.Data.SubmittedAt)

	require.Len(t, f.spawner.payloads, 1)
	p := f.spawner.payloads[0]
	assert.Equal(t, []string{"echo", "hi"}, p.Command)
	assert.Equal(t, "1", p.Env["A"])
	assert.Equal(t, "http://scheduler.internal:8080/execution/", p.Env[domain.DefaultEndpointEnvVar])
}

func TestSubmitTask_Workload(t *testing.T) {
	f := newFixture(t, 10)

	body := submitBody()
	body.Command = nil
	body.Workload = json.RawMessage(`{"ti":{"workflow_id":"etl"}}`)

	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	require.Len(t, f.spawner.payloads, 1)
	assert.JSONEq(t, `{"ti":{"workflow_id":"etl"}}`, string(f.spawner.payloads[0].Workload))
}

func TestSubmitTask_BadRequests(t *testing.T) {
	f := newFixture(t, 10)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/tasks", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := submitBody()
	body.RunID = "scheduled__2024-01-01T00:00:00"
	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeBadRequest, decodeError(t, data).Code)

	body = submitBody()
	body.Command = nil
	resp, _ = f.do(t, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = submitBody()
	body.Workload = json.RawMessage(`{"a":1}`)
	resp, _ = f.do(t, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, f.spawner.payloads)
}

func TestSubmitTask_Duplicate(t *testing.T) {
	f := newFixture(t, 10)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ErrCodeConflict, decodeError(t, data).Code)
	assert.Len(t, f.spawner.payloads, 1)
}

func TestSubmitTask_ParallelismLimit(t *testing.T) {
	f := newFixture(t, 1)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := submitBody()
	body.Attempt = 2
	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, ErrCodeTooManyRequests, decodeError(t, data).Code)
}

func TestSubmitTask_SpawnFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.spawner.err = errors.New("broker down")

	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.False(t, out.Data.InFlight)
	assert.Equal(t, 1, f.callbacks.failure)
	assert.Empty(t, f.exec.InFlight())
}

func TestSubmitTask_AfterShutdown(t *testing.T) {
	f := newFixture(t, 10)
	require.NoError(t, f.exec.Shutdown(context.Background()))

	resp, data := f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, ErrCodeUnavailable, decodeError(t, data).Code)
}

func TestListTasks(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())

	resp, data := f.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data  []TaskResponse `json:"data"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, "etl:load:run42:1", out.Data[0].TaskKey)
}

func TestGetTask(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())

	resp, data := f.do(t, http.MethodGet, "/api/v1/tasks/etl:load:run42:1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Data.InFlight)
	assert.Nil(t, out.Data.State)

	require.NoError(t, f.store.Set(context.Background(), "etl:load:run42:1", domain.NewRunningRecord()))
	_, data = f.do(t, http.MethodGet, "/api/v1/tasks/etl:load:run42:1", nil)
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotNil(t, out.Data.State)
	assert.Equal(t, domain.TaskStatusRunning, out.Data.State.Status)
}

func TestGetTask_NotFound(t *testing.T) {
	f := newFixture(t, 10)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/tasks/etl:load:run42:1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/tasks/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSync(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())
	require.NoError(t, f.store.Set(context.Background(), "etl:load:run42:1", domain.NewExitRecord(0, "done", "")))

	resp, data := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data executor.SyncResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 1, out.Data.Succeeded)
	assert.Equal(t, 1, f.callbacks.success)
	assert.Empty(t, f.exec.InFlight())
}

func TestGetEndpoint(t *testing.T) {
	f := newFixture(t, 3)
	f.do(t, http.MethodPost, "/api/v1/tasks", submitBody())

	resp, data := f.do(t, http.MethodGet, "/api/v1/endpoint", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data EndpointResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "http://scheduler.internal:8080/execution/", out.Data.Endpoint)
	assert.Equal(t, 3, out.Data.Parallelism)
	assert.Equal(t, 2, out.Data.SlotsAvailable)
	assert.Equal(t, 1, out.Data.InFlight)
}

func TestListHistory(t *testing.T) {
	f := newFixture(t, 10)
	f.history.entries = []repo.HistoryEntry{{EncodedKey: "etl:load:run42:1", Outcome: domain.TaskStatusSuccess}}

	resp, data := f.do(t, http.MethodGet, "/api/v1/history?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, f.history.limit)
	assert.Contains(t, string(data), `"task_key":"etl:load:run42:1"`)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.history.err = errors.New("db down")
	resp, data = f.do(t, http.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, data).Code)
}

func TestListHistory_NotConfigured(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 10)

	resp, data := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(data))

	resp, data = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "outpost_executor_tasks_inflight")
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, 10)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/tasks", nil)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/endpoint", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-1", resp.Header.Get(HeaderRequestID))
}

func TestLogging_CountsByRoutePattern(t *testing.T) {
	f := newFixture(t, 10)

	f.do(t, http.MethodGet, "/api/v1/tasks/etl:load:run42:1", nil)

	_, data := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, string(data), `outpost_api_requests_total{route="GET /api/v1/tasks/{key}",status="404"}`)
}
