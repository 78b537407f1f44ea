package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepo_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locks := NewLockRepo(rdb)
	ctx := context.Background()

	release, ok, err := locks.Acquire(ctx, "submit_lock:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locks.Acquire(ctx, "submit_lock:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("submit_lock:1"))

	_, ok, err = locks.Acquire(ctx, "submit_lock:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockRepo_ReleaseDoesNotStealReacquiredLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locks := NewLockRepo(rdb)
	ctx := context.Background()

	release, ok, err := locks.Acquire(ctx, "job_lock:x", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locks.Acquire(ctx, "job_lock:x", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	release()
	assert.True(t, mr.Exists("job_lock:x"))
}
