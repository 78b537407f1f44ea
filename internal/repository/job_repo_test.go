package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy-backend/internal/models"
)

func TestJobRepo_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewJobRepo(rdb)
	ctx := context.Background()

	job := &models.Job{User: models.User{ID: "1", Name: "Ada"}, Text: "notes"}
	require.NoError(t, repo.Create(ctx, job))
	assert.NotEqual(t, uuid.Nil, job.ID)

	queued, err := mr.List(JobQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID.String()}, queued)
	assert.Equal(t, 24*time.Hour, mr.TTL("job:"+job.ID.String()))

	require.NoError(t, repo.MarkProcessing(ctx, job))
	sessionID := uuid.New()
	require.NoError(t, repo.MarkCompleted(ctx, job, sessionID))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.SessionID)
	assert.Equal(t, sessionID, *got.SessionID)
	assert.Equal(t, "1", got.User.ID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRevocationRepo(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewRevocationRepo(rdb)
	ctx := context.Background()

	revoked, err := repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "abc", time.Minute))
	revoked, err = repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}
