package worker

import "errors"

// Ошибки воркера.
var (
	// ErrStartFailed — дочерний процесс не запустился.
	ErrStartFailed = errors.New("failed to start command")

	// ErrNoWorkloadCommand — не настроена команда для режима workload.
	ErrNoWorkloadCommand = errors.New("workload command is not configured")

	// ErrStatusWrite — не удалось записать статус в хранилище.
	ErrStatusWrite = errors.New("failed to write task status")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
