package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Outpost/internal/domain"
)

// InFlightSet — задачи, которые этот процесс считает незавершёнными.
//
// Запись добавляется только успешным Submit и удаляется только Sync,
// когда в хранилище появился терминальный статус (или сработал
// таймаут устаревания, если он включён).
//
// На время spawn ключ резервируется (Reserve): второй Submit того же
// ключа получает отказ, пока первый не закончил spawn.
type InFlightSet struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.InFlightTask
	reserved map[string]struct{}
}

// NewInFlightSet создаёт пустой InFlightSet.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{
		tasks:    make(map[string]*domain.InFlightTask),
		reserved: make(map[string]struct{}),
	}
}

// Reserve резервирует ключ. Возвращает false, если ключ уже
// зарезервирован или записан.
func (s *InFlightSet) Reserve(encoded string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[encoded]; ok {
		return false
	}
	if _, ok := s.reserved[encoded]; ok {
		return false
	}
	s.reserved[encoded] = struct{}{}
	return true
}

// Commit превращает резерв в запись.
func (s *InFlightSet) Commit(encoded string, key domain.TaskKey, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reserved, encoded)
	s.tasks[encoded] = &domain.InFlightTask{Key: key, EncodedKey: encoded, SubmittedAt: at}
}

// Release снимает резерв без записи.
func (s *InFlightSet) Release(encoded string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, encoded)
}

// Reserved — число ключей в процессе spawn.
func (s *InFlightSet) Reserved() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reserved)
}

// Contains проверяет наличие ключа.
func (s *InFlightSet) Contains(encoded string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[encoded]
	return ok
}

// Get возвращает копию записи.
func (s *InFlightSet) Get(encoded string) (domain.InFlightTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[encoded]
	if !ok {
		return domain.InFlightTask{}, false
	}
	return *t, true
}

// Remove удаляет ключи.
func (s *InFlightSet) Remove(encoded ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range encoded {
		delete(s.tasks, k)
	}
}

// Len возвращает количество записей.
func (s *InFlightSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Snapshot возвращает копии записей в порядке отправки.
func (s *InFlightSet) Snapshot() []domain.InFlightTask {
	s.mu.RLock()
	out := make([]domain.InFlightTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].EncodedKey < out[j].EncodedKey
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
