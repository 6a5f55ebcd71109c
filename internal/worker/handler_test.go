package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/archive"
	"github.com/shaiso/Outpost/internal/domain"
	"github.com/shaiso/Outpost/internal/statestore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingStore запоминает последовательность записанных статусов.
type recordingStore struct {
	*statestore.MemoryStore
	mu     sync.Mutex
	writes []domain.TaskStatus
	err    error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: statestore.NewMemoryStore()}
}

func (s *recordingStore) Set(ctx context.Context, key string, rec *domain.StatusRecord) error {
	s.mu.Lock()
	s.writes = append(s.writes, rec.Status)
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, rec)
}

// fakeRunner возвращает заданный результат и запоминает вызов.
type fakeRunner struct {
	result *Result
	err    error

	argv    []string
	env     []string
	onStart func()
}

func (r *fakeRunner) Run(_ context.Context, argv []string, env []string) (*Result, error) {
	r.argv = argv
	r.env = env
	if r.onStart != nil {
		r.onStart()
	}
	return r.result, r.err
}

// memArchive — архив в памяти.
type memArchive struct {
	files map[string]string
	err   error
}

func (a *memArchive) Write(_ context.Context, path string, content []byte) error {
	if a.err != nil {
		return a.err
	}
	if a.files == nil {
		a.files = make(map[string]string)
	}
	a.files[path] = string(content)
	return nil
}

func commandPayload(key string, argv ...string) *domain.DispatchPayload {
	return &domain.DispatchPayload{TaskKey: key, Command: argv}
}

func TestHandler_FailingCommand_Scenario(t *testing.T) {
	store := newRecordingStore()
	arc := &memArchive{}
	h := NewHandler(HandlerConfig{Store: store, Archive: arc, Logger: discardLogger()})

	key, err := domain.NewTaskKey("etl", "load", "run42", 1)
	require.NoError(t, err)
	encoded, err := key.Encode()
	require.NoError(t, err)
	require.Equal(t, "etl:load:run42:1", encoded)

	err = h.Handle(context.Background(), commandPayload(encoded, "sh", "-c", "echo working; echo broken >&2; exit 2"))
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	assert.Equal(t, 2, rec.Code())
	assert.Equal(t, "working\n", rec.StdoutTail)
	assert.Equal(t, "broken\n", rec.StderrTail)

	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusFailed}, store.writes)
	assert.Equal(t,
		"*** STDOUT ***\nworking\n\n*** STDERR ***\nbroken\n\n",
		arc.files["workflow_id=etl/run_id=run42/step_id=load/attempt=1.log"],
	)
}

func TestHandler_Success(t *testing.T) {
	store := newRecordingStore()
	h := NewHandler(HandlerConfig{Store: store, Logger: discardLogger()})

	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "true")))

	rec, err := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, rec.Status)
	assert.Equal(t, 0, rec.Code())
}

func TestHandler_RunningWrittenBeforeStart(t *testing.T) {
	store := newRecordingStore()
	runner := &fakeRunner{result: &Result{ExitCode: 0}}
	var observed *domain.StatusRecord
	runner.onStart = func() {
		observed, _ = store.Get(context.Background(), "w:s:r:1")
	}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Logger: discardLogger()})

	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "anything")))

	require.NotNil(t, observed)
	assert.Equal(t, domain.TaskStatusRunning, observed.Status)
	assert.Nil(t, observed.ReturnCode)
}

func TestHandler_TailsKeepEnd(t *testing.T) {
	store := newRecordingStore()
	out := strings.Repeat("a", 5000) + "LAST"
	runner := &fakeRunner{result: &Result{ExitCode: 1, Stdout: out, Stderr: "E" + strings.Repeat("b", 2500)}}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Logger: discardLogger()})

	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "x")))

	rec, err := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, err)
	assert.Len(t, rec.StdoutTail, domain.TailLimit)
	assert.True(t, strings.HasSuffix(rec.StdoutTail, "LAST"))
	assert.Equal(t, strings.Repeat("b", domain.TailLimit), rec.StderrTail)
}

func TestHandler_StartFailure(t *testing.T) {
	store := newRecordingStore()
	h := NewHandler(HandlerConfig{Store: store, Logger: discardLogger()})

	err := h.Handle(context.Background(), commandPayload("w:s:r:1", "/no/such/binary"))
	require.ErrorIs(t, err, ErrStartFailed)

	rec, getErr := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	assert.Equal(t, -1, rec.Code())
	assert.Contains(t, rec.Error, "failed to start command")
}

func TestHandler_MalformedPayload(t *testing.T) {
	store := newRecordingStore()
	runner := &fakeRunner{result: &Result{}}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Logger: discardLogger()})

	payloads := []*domain.DispatchPayload{
		{TaskKey: "", Command: []string{"true"}},
		{TaskKey: "bad-key", Command: []string{"true"}},
		{TaskKey: "w:s:r:1"},
	}
	for _, p := range payloads {
		err := h.Handle(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	}

	assert.Empty(t, store.writes)
	assert.Nil(t, runner.argv)
}

func TestHandler_ArchiveFailureDoesNotFailTask(t *testing.T) {
	store := newRecordingStore()
	arc := &memArchive{err: errors.New("disk full")}
	runner := &fakeRunner{result: &Result{ExitCode: 0, Stdout: "ok"}}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Archive: arc, Logger: discardLogger()})

	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "x")))

	rec, err := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, rec.Status)
}

func TestHandler_StoreUnavailable(t *testing.T) {
	store := newRecordingStore()
	store.err = errors.New("store down")
	runner := &fakeRunner{result: &Result{}}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Logger: discardLogger()})

	err := h.Handle(context.Background(), commandPayload("w:s:r:1", "x"))
	require.ErrorIs(t, err, ErrStatusWrite)
	assert.Nil(t, runner.argv, "work must not start without RUNNING")
}

func TestHandler_WorkloadMode(t *testing.T) {
	store := newRecordingStore()
	arc := &memArchive{}
	runner := &fakeRunner{result: &Result{ExitCode: 0}}
	h := NewHandler(HandlerConfig{
		Store:           store,
		Runner:          runner,
		Archive:         arc,
		WorkloadCommand: []string{"run-workload", "--json"},
		Logger:          discardLogger(),
	})

	workload := json.RawMessage(`{"ti":{"workflow_id":"etl","step_id":"load","run_id":"run42","attempt":3},"token":"t"}`)
	p := &domain.DispatchPayload{TaskKey: "etl:load:run42:3", Workload: workload}

	require.NoError(t, h.Handle(context.Background(), p))

	require.Len(t, runner.argv, 3)
	assert.Equal(t, []string{"run-workload", "--json"}, runner.argv[:2])
	assert.JSONEq(t, string(workload), runner.argv[2])
	assert.Contains(t, arc.files, "workflow_id=etl/run_id=run42/step_id=load/attempt=3.log")
}

func TestHandler_WorkloadWithoutIdentitySkipsArchive(t *testing.T) {
	store := newRecordingStore()
	arc := &memArchive{}
	runner := &fakeRunner{result: &Result{ExitCode: 0}}
	h := NewHandler(HandlerConfig{Store: store, Runner: runner, Archive: arc, Logger: discardLogger()})

	p := &domain.DispatchPayload{TaskKey: "w:s:r:1", Workload: json.RawMessage(`{"token":"t"}`)}
	require.NoError(t, h.Handle(context.Background(), p))

	assert.Empty(t, arc.files)
	rec, err := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, rec.Status)
	assert.Equal(t, DefaultWorkloadCommand, runner.argv[:len(DefaultWorkloadCommand)])
}

func TestHandler_EnvMerge(t *testing.T) {
	store := newRecordingStore()
	runner := &fakeRunner{result: &Result{}}
	h := NewHandler(HandlerConfig{
		Store:   store,
		Runner:  runner,
		Environ: func() []string { return []string{"PATH=/bin", "SECRET=ambient"} },
		Logger:  discardLogger(),
	})

	p := commandPayload("w:s:r:1", "x")
	p.Env = map[string]string{"SECRET": "payload", "OUTPOST_EXECUTION_API_URL": "https://x/execution/"}
	require.NoError(t, h.Handle(context.Background(), p))

	assert.Equal(t, []string{"PATH=/bin", "SECRET=ambient", "OUTPOST_EXECUTION_API_URL=https://x/execution/"}, runner.env)
}

func TestHandler_RerunOverwrites(t *testing.T) {
	store := newRecordingStore()
	h := NewHandler(HandlerConfig{Store: store, Logger: discardLogger()})

	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "false")))
	require.NoError(t, h.Handle(context.Background(), commandPayload("w:s:r:1", "true")))

	rec, err := store.Get(context.Background(), "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, rec.Status)
}

var _ archive.Archive = (*memArchive)(nil)
