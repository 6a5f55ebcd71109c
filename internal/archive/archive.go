// Package archive хранит полный вывод task по детерминированному пути.
//
// Путь: workflow_id=<W>/run_id=<R>/step_id=<S>/attempt=<N>.log
// относительно корня архива (каталог volume или префикс S3 bucket).
// Содержимое — две секции, "*** STDOUT ***" и "*** STDERR ***".
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Outpost/internal/domain"
)

// ErrInvalidPath — из идентичности task нельзя построить путь.
var ErrInvalidPath = errors.New("invalid archive path")

// Archive — долговременное хранилище логов.
type Archive interface {
	// Write сохраняет content по относительному пути.
	Write(ctx context.Context, path string, content []byte) error
}

// Path строит относительный путь архива для task.
func Path(key domain.TaskKey) (string, error) {
	fields := []struct {
		name, value string
	}{
		{"workflow_id", key.WorkflowID},
		{"run_id", key.RunID},
		{"step_id", key.StepID},
	}
	for _, f := range fields {
		if f.value == "" || f.value == "." || f.value == ".." || strings.ContainsAny(f.value, `/\`) {
			return "", fmt.Errorf("%w: %s=%q", ErrInvalidPath, f.name, f.value)
		}
	}
	if key.Attempt < 1 {
		return "", fmt.Errorf("%w: attempt=%d", ErrInvalidPath, key.Attempt)
	}

	return fmt.Sprintf("workflow_id=%s/run_id=%s/step_id=%s/attempt=%d.log",
		key.WorkflowID, key.RunID, key.StepID, key.Attempt), nil
}

// Format собирает содержимое файла лога.
func Format(stdout, stderr string) []byte {
	var b bytes.Buffer
	b.Grow(len(stdout) + len(stderr) + 32)
	b.WriteString("*** STDOUT ***\n")
	b.WriteString(stdout)
	b.WriteString("\n*** STDERR ***\n")
	b.WriteString(stderr)
	b.WriteString("\n")
	return b.Bytes()
}
