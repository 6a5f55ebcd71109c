package executor

import "errors"

// Ошибки executor'а.
var (
	// ErrExecutorStopped — Submit после Shutdown.
	ErrExecutorStopped = errors.New("executor stopped")

	// ErrAlreadyStarted — повторный Start.
	ErrAlreadyStarted = errors.New("executor already started")

	// ErrAlreadyInFlight — task с таким ключом уже отправлена и не сверена.
	ErrAlreadyInFlight = errors.New("task already in flight")
)
