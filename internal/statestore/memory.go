package statestore

import (
	"context"
	"sync"

	"github.com/shaiso/Outpost/internal/domain"
)

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.StatusRecord
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.StatusRecord)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(&rec), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, rec *domain.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = *copyRecord(rec)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Len возвращает количество записей.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// copyRecord копирует запись вместе с ReturnCode, чтобы вызывающий
// не мог изменить хранимое значение через указатель.
func copyRecord(rec *domain.StatusRecord) *domain.StatusRecord {
	out := *rec
	if rec.ReturnCode != nil {
		code := *rec.ReturnCode
		out.ReturnCode = &code
	}
	return &out
}
