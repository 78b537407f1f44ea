package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/repository"
	"studybuddy-backend/internal/services"
)

const (
	jobLockTTL  = 10 * time.Minute
	maxAttempts = 3
)

type submitter interface {
	Submit(ctx context.Context, user models.User, rawText string) (*models.StudySession, error)
}

type jobNotifier interface {
	JobCompleted(ctx context.Context, userID string, jobID, sessionID uuid.UUID)
	JobFailed(ctx context.Context, userID string, jobID uuid.UUID, code, message string)
}

// Pool drains the async analysis queue. Each job runs through the same
// SessionPipeline as a synchronous submit.
type Pool struct {
	redis    *redis.Client
	jobs     *repository.JobRepo
	locks    *repository.LockRepo
	pipeline submitter
	notifier jobNotifier
	log      *logger.Logger

	workerCount int
	pollTimeout time.Duration
	backoff     func(attempt int) time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPool(
	redisClient *redis.Client,
	jobs *repository.JobRepo,
	locks *repository.LockRepo,
	pipeline submitter,
	notifier jobNotifier,
	workerCount int,
	log *logger.Logger,
) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		jobs:        jobs,
		locks:       locks,
		pipeline:    pipeline,
		notifier:    notifier,
		log:         log,
		workerCount: workerCount,
		pollTimeout: 5 * time.Second,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		stopChan: make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("started workers", "count", p.workerCount)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-p.stopChan:
			p.log.Debug("worker shutting down", "worker", id)
			return
		default:
		}

		result, err := p.redis.BLPop(ctx, p.pollTimeout, repository.JobQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.log.Warn("queue poll failed", "worker", id, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		jobID, err := uuid.Parse(result[1])
		if err != nil {
			p.log.Warn("dropping malformed job id", "worker", id, "value", result[1])
			continue
		}

		// A job popped during shutdown still runs to completion.
		p.process(context.WithoutCancel(ctx), id, jobID)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, jobID uuid.UUID) {
	release, ok, err := p.locks.Acquire(ctx, "job_lock:"+jobID.String(), jobLockTTL)
	if err != nil {
		p.log.Warn("failed to lock job", "job_id", jobID, "error", err)
		return
	}
	if !ok {
		return
	}
	defer release()

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		p.log.Warn("failed to load job", "job_id", jobID, "error", err)
		return
	}
	if job.Status == "completed" || job.Status == "failed" {
		return
	}

	job.Attempts++
	if err := p.jobs.MarkProcessing(ctx, job); err != nil {
		p.log.Warn("failed to mark job processing", "job_id", jobID, "error", err)
	}
	p.log.Info("processing job", "worker", workerID, "job_id", jobID, "user_id", job.User.ID, "attempt", job.Attempts)

	session, err := p.pipeline.Submit(services.WithJobID(ctx, job.ID), job.User, job.Text)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	if err := p.jobs.MarkCompleted(ctx, job, session.ID); err != nil {
		p.log.Warn("failed to mark job completed", "job_id", jobID, "error", err)
	}
	p.notifier.JobCompleted(ctx, job.User.ID, job.ID, session.ID)
	p.log.Info("job completed", "job_id", jobID, "session_id", session.ID)
}

// handleFailure requeues a job blocked by a concurrent submit and fails
// everything else. Analysis errors are not retried.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	var busy *services.BusyError
	if errors.As(err, &busy) && job.Attempts < maxAttempts {
		delay := p.backoff(job.Attempts)
		p.log.Info("user busy, requeueing job", "job_id", job.ID, "attempt", job.Attempts, "delay", delay)
		time.AfterFunc(delay, func() {
			if err := p.jobs.Requeue(context.Background(), job); err != nil {
				p.log.Error("failed to requeue job", "job_id", job.ID, "error", err)
			}
		})
		return
	}

	code, msg := failureCode(err)
	p.log.Warn("job failed", "job_id", job.ID, "code", code, "error", err)
	if merr := p.jobs.MarkFailed(ctx, job, msg); merr != nil {
		p.log.Warn("failed to mark job failed", "job_id", job.ID, "error", merr)
	}
	p.notifier.JobFailed(ctx, job.User.ID, job.ID, code, msg)
}

func failureCode(err error) (string, string) {
	var (
		verr *services.ValidationError
		terr *services.TimeoutError
		aerr *services.AIRequestError
		busy *services.BusyError
	)
	switch {
	case errors.As(err, &verr):
		return "VALIDATION_ERROR", verr.Error()
	case errors.As(err, &terr):
		return "AI_TIMEOUT", terr.Error()
	case errors.As(err, &aerr):
		return "AI_REQUEST_FAILED", aerr.Message
	case errors.As(err, &busy):
		return "BUSY", busy.Message
	default:
		return "JOB_FAILED", "Analysis failed"
	}
}
