package statestore

import (
	"context"
	"errors"

	"github.com/shaiso/Outpost/internal/domain"
)

// ErrNotFound — по ключу нет записи.
var ErrNotFound = errors.New("state not found")

// Store — общее хранилище статусов.
type Store interface {
	// Get возвращает запись или ErrNotFound.
	Get(ctx context.Context, key string) (*domain.StatusRecord, error)

	// Set перезаписывает запись целиком (last-writer-wins).
	Set(ctx context.Context, key string, rec *domain.StatusRecord) error

	// Delete удаляет запись. Удаление отсутствующего ключа — не ошибка.
	Delete(ctx context.Context, key string) error
}
