package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result — результат дочернего процесса.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner запускает единицу работы как дочерний процесс.
//
// Ненулевой код выхода — это Result, а не error. error возвращается,
// только если процесс не удалось запустить (ErrStartFailed).
type Runner interface {
	Run(ctx context.Context, argv []string, env []string) (*Result, error)
}

// ExecRunner — Runner на os/exec.
type ExecRunner struct {
	// Dir — рабочий каталог (пустой — текущий).
	Dir string

	// KillGrace — сколько ждать после отмены ctx до SIGKILL.
	KillGrace time.Duration
}

// Run запускает argv и ждёт завершения, собирая stdout/stderr целиком.
func (r *ExecRunner) Run(ctx context.Context, argv []string, env []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrStartFailed)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = r.Dir
	if r.KillGrace > 0 {
		cmd.WaitDelay = r.KillGrace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	err := cmd.Wait()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case cmd.ProcessState != nil:
		// Процесс завершился, но ожидание вывода прервано (WaitDelay).
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		res.ExitCode = -1
	}
	return res, nil
}
