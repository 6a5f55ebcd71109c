package statestore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/domain"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "w:s:r:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "w:s:r:1", domain.NewRunningRecord()))
	rec, err := s.Get(ctx, "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, rec.Status)
	assert.Nil(t, rec.ReturnCode)

	require.NoError(t, s.Set(ctx, "w:s:r:1", domain.NewExitRecord(2, "", "oops")))
	rec, err = s.Get(ctx, "w:s:r:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, rec.Status)
	assert.Equal(t, 2, rec.Code())

	require.NoError(t, s.Delete(ctx, "w:s:r:1"))
	_, err = s.Get(ctx, "w:s:r:1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Удаление отсутствующего ключа — не ошибка.
	assert.NoError(t, s.Delete(ctx, "w:s:r:1"))
}

func TestMemoryStore_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", domain.NewExitRecord(0, "", "")))

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	*rec.ReturnCode = 99

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Code())
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("w:s:r:%d", i+1)
			_ = s.Set(ctx, key, domain.NewRunningRecord())
			_ = s.Set(ctx, key, domain.NewExitRecord(0, "", ""))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
