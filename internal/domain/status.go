package domain

import (
	"fmt"
	"time"
)

// TailLimit — сколько последних символов stdout/stderr сохраняется в записи статуса.
const TailLimit = 2000

// TaskStatus — статус выполнения task в общем хранилище.
//
// Жизненный цикл:
//
//	(нет ключа) → RUNNING → SUCCESS
//	                      ↘ FAILED
//
// RUNNING пишется ровно один раз перед стартом работы,
// затем перезаписывается терминальным статусом.
type TaskStatus string

const (
	// TaskStatusRunning — worker начал выполнение.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSuccess — команда завершилась с кодом 0.
	TaskStatusSuccess TaskStatus = "SUCCESS"

	// TaskStatusFailed — ненулевой код выхода или ошибка запуска.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// StatusRecord — запись, которую worker публикует в общее хранилище.
type StatusRecord struct {
	// Status — текущий статус.
	Status TaskStatus `json:"status" dynamodbav:"status"`

	// ReturnCode — код выхода дочернего процесса.
	// Nil, пока task в статусе RUNNING.
	ReturnCode *int `json:"return_code" dynamodbav:"return_code"`

	// StdoutTail — последние TailLimit символов stdout.
	StdoutTail string `json:"stdout_tail,omitempty" dynamodbav:"stdout_tail,omitempty"`

	// StderrTail — последние TailLimit символов stderr.
	StderrTail string `json:"stderr_tail,omitempty" dynamodbav:"stderr_tail,omitempty"`

	// Error — сообщение об ошибке запуска или подготовки.
	Error string `json:"error,omitempty" dynamodbav:"error,omitempty"`

	// UpdatedAt — время записи.
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// NewRunningRecord создаёт запись RUNNING без кода выхода.
func NewRunningRecord() *StatusRecord {
	return &StatusRecord{
		Status:    TaskStatusRunning,
		UpdatedAt: time.Now().UTC(),
	}
}

// NewExitRecord создаёт терминальную запись по коду выхода.
// Хвосты обрезаются до TailLimit символов с конца.
func NewExitRecord(code int, stdout, stderr string) *StatusRecord {
	status := TaskStatusSuccess
	errMsg := ""
	if code != 0 {
		status = TaskStatusFailed
		errMsg = fmt.Sprintf("command exited with code %d", code)
	}

	return &StatusRecord{
		Status:     status,
		ReturnCode: &code,
		StdoutTail: Tail(stdout, TailLimit),
		StderrTail: Tail(stderr, TailLimit),
		Error:      errMsg,
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewErrorRecord создаёт запись FAILED с кодом -1 для ошибок вне дочернего процесса.
func NewErrorRecord(err error) *StatusRecord {
	code := -1
	return &StatusRecord{
		Status:     TaskStatusFailed,
		ReturnCode: &code,
		Error:      err.Error(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// Code возвращает код выхода или -1, если его нет.
func (r *StatusRecord) Code() int {
	if r == nil || r.ReturnCode == nil {
		return -1
	}
	return *r.ReturnCode
}

// Tail возвращает последние n символов строки.
// Работает по рунам, чтобы не резать UTF-8 посередине.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
