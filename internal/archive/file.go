package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileArchive пишет логи в каталог (обычно смонтированный volume).
type FileArchive struct {
	root string
}

// NewFileArchive создаёт FileArchive с корнем root.
func NewFileArchive(root string) *FileArchive {
	return &FileArchive{root: root}
}

// Write записывает файл атомарно: во временный файл, затем rename.
func (a *FileArchive) Write(_ context.Context, path string, content []byte) error {
	full := filepath.Join(a.root, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".attempt-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}
