package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StateResponse — запись статуса из общего хранилища.
type StateResponse struct {
	Status     string `json:"status"`
	ReturnCode *int   `json:"return_code"`
	StdoutTail string `json:"stdout_tail,omitempty"`
	StderrTail string `json:"stderr_tail,omitempty"`
	Error      string `json:"error,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	TaskKey     string         `json:"task_key"`
	WorkflowID  string         `json:"workflow_id"`
	StepID      string         `json:"step_id"`
	RunID       string         `json:"run_id"`
	Attempt     int            `json:"attempt"`
	InFlight    bool           `json:"in_flight"`
	SubmittedAt string         `json:"submitted_at,omitempty"`
	State       *StateResponse `json:"state,omitempty"`
}

// EndpointResponse — endpoint и загрузка executor'а.
type EndpointResponse struct {
	Endpoint       string `json:"endpoint"`
	Parallelism    int    `json:"parallelism"`
	SlotsAvailable int    `json:"slots_available"`
	InFlight       int    `json:"in_flight"`
}

// SyncResponse — итог сверки.
type SyncResponse struct {
	Checked   int `json:"checked"`
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Stale     int `json:"stale"`
	Errors    int `json:"errors"`
}

// HistoryResponse — запись журнала.
type HistoryResponse struct {
	ID         string `json:"id"`
	TaskKey    string `json:"task_key"`
	Outcome    string `json:"outcome"`
	ReturnCode int    `json:"return_code"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// --- Request types ---

// SubmitTaskRequest — отправка task.
type SubmitTaskRequest struct {
	WorkflowID string            `json:"workflow_id"`
	StepID     string            `json:"step_id"`
	RunID      string            `json:"run_id"`
	Attempt    int               `json:"attempt"`
	Command    []string          `json:"command,omitempty"`
	Workload   json.RawMessage   `json:"workload,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для control API Outpost.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает in-flight tasks.
func (c *Client) ListTasks() ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", nil, &tasks)
	return tasks, err
}

// SubmitTask отправляет task.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает task по ключу.
func (c *Client) GetTask(key string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+url.PathEscape(key), &task)
	return &task, err
}

// Sync запускает внеочередную сверку.
func (c *Client) Sync() (*SyncResponse, error) {
	var res SyncResponse
	err := c.post("/api/v1/sync", nil, &res)
	return &res, err
}

// --- Endpoint ---

// GetEndpoint возвращает endpoint executor'а.
func (c *Client) GetEndpoint() (*EndpointResponse, error) {
	var ep EndpointResponse
	err := c.get("/api/v1/endpoint", &ep)
	return &ep, err
}

// --- History ---

// ListHistory возвращает последние завершённые tasks.
func (c *Client) ListHistory(limit int) ([]HistoryResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var entries []HistoryResponse
	err := c.list("/api/v1/history", params, &entries)
	return entries, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
