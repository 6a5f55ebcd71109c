package app

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Resources — стек функций закрытия.
type Resources struct {
	closers []namedCloser
	logger  *slog.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

// NewResources создаёт пустой стек.
func NewResources(logger *slog.Logger) *Resources {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resources{logger: logger}
}

// Add регистрирует функцию закрытия.
func (r *Resources) Add(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

// Close закрывает ресурсы в обратном порядке и очищает стек.
func (r *Resources) Close() error {
	var errs []error
	for _, c := range slices.Backward(r.closers) {
		if err := c.close(); err != nil {
			r.logger.Warn("failed to close resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		r.logger.Debug("resource closed", "resource", c.name)
	}
	r.closers = nil
	return errors.Join(errs...)
}
