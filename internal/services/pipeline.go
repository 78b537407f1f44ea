package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/repository"
)

const (
	submitLockTTL = 5 * time.Minute
	appendTimeout = 10 * time.Second
)

// SubmitGuard lets one submission per user run at a time.
type SubmitGuard interface {
	// Acquire returns BusyError when a submission for userID is in flight.
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// SubmitObserver receives pipeline progress. Calls must not block.
type SubmitObserver interface {
	SubmitStateChanged(ctx context.Context, user models.User, state models.SubmitState)
	PersistenceFailed(ctx context.Context, user models.User, session *models.StudySession, err *PersistenceError)
}

type nopObserver struct{}

func (nopObserver) SubmitStateChanged(context.Context, models.User, models.SubmitState) {}
func (nopObserver) PersistenceFailed(context.Context, models.User, *models.StudySession, *PersistenceError) {
}

type RedisSubmitGuard struct {
	locks *repository.LockRepo
}

func NewRedisSubmitGuard(locks *repository.LockRepo) *RedisSubmitGuard {
	return &RedisSubmitGuard{locks: locks}
}

func (g *RedisSubmitGuard) Acquire(ctx context.Context, userID string) (func(), error) {
	release, ok, err := g.locks.Acquire(ctx, "submit_lock:"+userID, submitLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &BusyError{Message: "An analysis is already running for this account"}
	}
	return release, nil
}

// MemorySubmitGuard is a process-local SubmitGuard.
type MemorySubmitGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemorySubmitGuard() *MemorySubmitGuard {
	return &MemorySubmitGuard{held: make(map[string]bool)}
}

func (g *MemorySubmitGuard) Acquire(_ context.Context, userID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[userID] {
		return nil, &BusyError{Message: "An analysis is already running for this account"}
	}
	g.held[userID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, userID)
			g.mu.Unlock()
		})
	}, nil
}

// SessionPipeline turns raw study text into a persisted StudySession.
type SessionPipeline struct {
	gateway  Gateway
	store    repository.HistoryStore
	guard    SubmitGuard
	observer SubmitObserver
	log      *logger.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func NewSessionPipeline(gateway Gateway, store repository.HistoryStore, guard SubmitGuard, observer SubmitObserver, log *logger.Logger) *SessionPipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &SessionPipeline{
		gateway:  gateway,
		store:    store,
		guard:    guard,
		observer: observer,
		log:      log,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// Submit analyzes rawText and records the result in the user's history.
//
// A failed history write does not fail the call: the session is returned with
// a nil error and the failure goes to the observer as a PersistenceError.
func (p *SessionPipeline) Submit(ctx context.Context, user models.User, rawText string) (*models.StudySession, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "Study material is required"}}
	}
	if user.ID == "" {
		return nil, &ValidationError{Fields: map[string]string{"user": "User is required"}}
	}

	if p.guard != nil {
		release, err := p.guard.Acquire(ctx, user.ID)
		if err != nil {
			var busy *BusyError
			if errors.As(err, &busy) {
				return nil, err
			}
			p.log.Error("failed to acquire submit lock", "user_id", user.ID, "error", err)
			return nil, &PersistenceError{Op: "acquire submit lock", Err: err}
		}
		defer release()
	}

	p.observer.SubmitStateChanged(ctx, user, models.SubmitSubmitting)

	result, err := p.gateway.Analyze(ctx, rawText)
	if err != nil {
		p.log.Warn("analysis failed", "user_id", user.ID, "error", err)
		p.observer.SubmitStateChanged(ctx, user, models.SubmitFailed)
		return nil, err
	}

	session := &models.StudySession{
		ID:                p.newID(),
		UserID:            user.ID,
		OriginalText:      rawText,
		Summary:           result.Summary,
		SimpleExplanation: result.SimpleExplanation,
		Questions:         result.Questions,
		SpeechScore:       result.Score,
		SpeechFeedback:    result.Feedback,
		Keywords:          append([]string{}, result.Keywords...),
		Difficulty:        result.Difficulty,
		ReadingTime:       result.ReadingTime,
		CreatedAt:         p.now().UTC(),
	}

	// The analysis already happened; keep the write alive if the caller leaves.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()
	if err := p.store.Append(actx, user.ID, session); err != nil {
		perr := &PersistenceError{Op: "append history", Err: err}
		p.log.Error("failed to save study session", "user_id", user.ID, "session_id", session.ID, "error", err)
		p.observer.PersistenceFailed(ctx, user, session, perr)
	}

	p.observer.SubmitStateChanged(ctx, user, models.SubmitSucceeded)
	return session, nil
}

// History lists the user's sessions, most recent first. A non-empty query
// keeps sessions whose summary or original text contains it, ignoring case.
func (p *SessionPipeline) History(ctx context.Context, userID, query string) ([]models.StudySession, error) {
	sessions, err := p.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions, nil
	}

	filtered := make([]models.StudySession, 0, len(sessions))
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Summary), q) || strings.Contains(strings.ToLower(s.OriginalText), q) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (p *SessionPipeline) Session(ctx context.Context, userID string, id uuid.UUID) (*models.StudySession, error) {
	s, err := p.store.Get(ctx, userID, id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, &NotFoundError{Message: "Study session not found"}
	}
	return s, err
}
