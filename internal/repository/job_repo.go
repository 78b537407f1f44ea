package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybuddy-backend/internal/models"
)

const (
	JobQueue = "queue:study-analysis"
	jobTTL   = 24 * time.Hour
)

var ErrJobNotFound = errors.New("job not found")

// JobRepo keeps async analysis jobs in Redis under job:<id>.
type JobRepo struct {
	rdb *redis.Client
}

func NewJobRepo(rdb *redis.Client) *JobRepo {
	return &JobRepo{rdb: rdb}
}

func jobKey(id uuid.UUID) string {
	return "job:" + id.String()
}

// Create stores a pending job and pushes it onto the analysis queue.
func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = "pending"
	j.CreatedAt = time.Now().UTC()

	if err := r.save(ctx, j); err != nil {
		return err
	}
	if err := r.rdb.RPush(ctx, JobQueue, j.ID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	raw, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var j models.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &j, nil
}

func (r *JobRepo) MarkProcessing(ctx context.Context, j *models.Job) error {
	j.Status = "processing"
	return r.save(ctx, j)
}

func (r *JobRepo) MarkCompleted(ctx context.Context, j *models.Job, sessionID uuid.UUID) error {
	j.Status = "completed"
	j.SessionID = &sessionID
	j.Error = nil
	return r.save(ctx, j)
}

func (r *JobRepo) MarkFailed(ctx context.Context, j *models.Job, msg string) error {
	j.Status = "failed"
	j.Error = &msg
	return r.save(ctx, j)
}

// Requeue puts a job back on the queue as pending.
func (r *JobRepo) Requeue(ctx context.Context, j *models.Job) error {
	j.Status = "pending"
	if err := r.save(ctx, j); err != nil {
		return err
	}
	if err := r.rdb.RPush(ctx, JobQueue, j.ID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (r *JobRepo) save(ctx context.Context, j *models.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := r.rdb.Set(ctx, jobKey(j.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}
