package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s := New(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func TestLock_ExcludesSecondHolder(t *testing.T) {
	s := testStore(t)
	key := "test-" + uuid.NewString()

	unlock, err := s.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}

func TestLock_ExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	s := testStore(t)
	s.LockTTL = 100 * time.Millisecond
	key := "test-" + uuid.NewString()

	stale, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	s.LockTTL = time.Minute
	fresh, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	defer fresh()

	stale()
	exists, err := s.rdb.Exists(context.Background(), lockPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
