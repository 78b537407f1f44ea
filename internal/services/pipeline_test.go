package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/repository"
)

type stubGateway struct {
	mu           sync.Mutex
	result       *models.AIAnalysisResult
	err          error
	audio        string
	speechErr    error
	analyzeCalls int
	speechCalls  int
	release      chan struct{} // when set, calls wait for it
}

func (g *stubGateway) Analyze(ctx context.Context, content string) (*models.AIAnalysisResult, error) {
	g.mu.Lock()
	g.analyzeCalls++
	g.mu.Unlock()
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	r := *g.result
	return &r, nil
}

func (g *stubGateway) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.speechCalls++
	g.mu.Unlock()
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.audio, g.speechErr
}

type failingStore struct {
	repository.HistoryStore
	err error
}

func (s *failingStore) Append(context.Context, string, *models.StudySession) error { return s.err }

type recordingObserver struct {
	mu          sync.Mutex
	states      []models.SubmitState
	persistErrs []*PersistenceError
}

func (o *recordingObserver) SubmitStateChanged(_ context.Context, _ models.User, state models.SubmitState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) PersistenceFailed(_ context.Context, _ models.User, _ *models.StudySession, err *PersistenceError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistErrs = append(o.persistErrs, err)
}

func sampleResult() *models.AIAnalysisResult {
	return &models.AIAnalysisResult{
		Summary:           "- photosynthesis makes glucose",
		SimpleExplanation: "Plants cook food with light.",
		Questions:         "1. What is chlorophyll?",
		Score:             90,
		Feedback:          "Very readable.",
		Keywords:          []string{"chlorophyll", "glucose"},
		Difficulty:        models.DifficultyEasy,
		ReadingTime:       "2 mins",
	}
}

var testUser = models.User{ID: "1", Name: "Ada", Email: "ada@example.com"}

func newTestPipeline(gw Gateway, store repository.HistoryStore, obs SubmitObserver) *SessionPipeline {
	p := NewSessionPipeline(gw, store, NewMemorySubmitGuard(), obs, logger.Nop())
	p.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600)) }
	return p
}

func TestSubmit_EmptyInputMakesNoCall(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		gw := &stubGateway{result: sampleResult()}
		p := newTestPipeline(gw, repository.NewMemoryHistoryStore(), nil)

		session, err := p.Submit(context.Background(), testUser, text)
		assert.Nil(t, session)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Fields, "text")
		assert.Equal(t, 0, gw.analyzeCalls)
	}
}

func TestSubmit_BuildsAndPersistsSession(t *testing.T) {
	store := repository.NewMemoryHistoryStore()
	obs := &recordingObserver{}
	p := newTestPipeline(&stubGateway{result: sampleResult()}, store, obs)

	text := "  Photosynthesis converts light into chemical energy.  "
	session, err := p.Submit(context.Background(), testUser, text)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, session.ID)
	assert.Equal(t, "1", session.UserID)
	assert.Equal(t, text, session.OriginalText)
	assert.Equal(t, 90, session.SpeechScore)
	assert.Equal(t, "Very readable.", session.SpeechFeedback)
	assert.Equal(t, models.DifficultyEasy, session.Difficulty)
	assert.Equal(t, time.UTC, session.CreatedAt.Location())
	assert.Equal(t, []models.SubmitState{models.SubmitSubmitting, models.SubmitSucceeded}, obs.states)

	history, err := store.Load(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.ID, history[0].ID)
}

func TestSubmit_TwoSubmissionsMostRecentFirst(t *testing.T) {
	store := repository.NewMemoryHistoryStore()
	p := newTestPipeline(&stubGateway{result: sampleResult()}, store, nil)

	s1, err := p.Submit(context.Background(), testUser, "first")
	require.NoError(t, err)
	s2, err := p.Submit(context.Background(), testUser, "second")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)

	history, err := p.History(context.Background(), "1", "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, s2.ID, history[0].ID)
	assert.Equal(t, s1.ID, history[1].ID)
}

func TestSubmit_GatewayErrorUnchanged(t *testing.T) {
	gwErr := &AIRequestError{Message: "API key not valid"}
	store := repository.NewMemoryHistoryStore()
	obs := &recordingObserver{}
	p := newTestPipeline(&stubGateway{err: gwErr}, store, obs)

	session, err := p.Submit(context.Background(), testUser, "notes")
	assert.Nil(t, session)
	assert.Same(t, gwErr, err)
	assert.Equal(t, []models.SubmitState{models.SubmitSubmitting, models.SubmitFailed}, obs.states)

	history, _ := store.Load(context.Background(), "1")
	assert.Empty(t, history)
}

func TestSubmit_PersistenceFailureStillReturnsSession(t *testing.T) {
	storeErr := errors.New("disk full")
	obs := &recordingObserver{}
	p := newTestPipeline(&stubGateway{result: sampleResult()}, &failingStore{err: storeErr}, obs)

	session, err := p.Submit(context.Background(), testUser, "notes")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "- photosynthesis makes glucose", session.Summary)

	require.Len(t, obs.persistErrs, 1)
	assert.ErrorIs(t, obs.persistErrs[0], storeErr)
	assert.Equal(t, models.SubmitSucceeded, obs.states[len(obs.states)-1])
}

func TestSubmit_ConcurrentSubmitIsBusy(t *testing.T) {
	gw := &stubGateway{result: sampleResult(), release: make(chan struct{})}
	p := newTestPipeline(gw, repository.NewMemoryHistoryStore(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), testUser, "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.analyzeCalls == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.Submit(context.Background(), testUser, "second")
	var busy *BusyError
	assert.True(t, errors.As(err, &busy))

	// Another user is unaffected by the first user's lock.
	other := models.User{ID: "2"}
	otherDone := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), other, "other")
		otherDone <- err
	}()

	close(gw.release)
	require.NoError(t, <-done)
	require.NoError(t, <-otherDone)

	_, err = p.Submit(context.Background(), testUser, "third")
	assert.NoError(t, err)
}

func TestRedisSubmitGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	guard := NewRedisSubmitGuard(repository.NewLockRepo(rdb))
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("submit_lock:1"))

	_, err = guard.Acquire(ctx, "1")
	var busy *BusyError
	assert.True(t, errors.As(err, &busy))

	release()
	_, err = guard.Acquire(ctx, "1")
	assert.NoError(t, err)
}

func TestSubmit_LockStoreDownIsPersistenceError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	gw := &stubGateway{result: sampleResult()}
	obs := &recordingObserver{}
	p := NewSessionPipeline(gw, repository.NewMemoryHistoryStore(), NewRedisSubmitGuard(repository.NewLockRepo(rdb)), obs, logger.Nop())

	session, err := p.Submit(context.Background(), testUser, "photosynthesis")
	assert.Nil(t, session)
	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "acquire submit lock", pErr.Op)
	assert.Equal(t, 0, gw.analyzeCalls)
	assert.Empty(t, obs.states)
}

func TestHistory_Search(t *testing.T) {
	store := repository.NewMemoryHistoryStore()
	p := newTestPipeline(&stubGateway{result: sampleResult()}, store, nil)
	ctx := context.Background()

	_, err := p.Submit(ctx, testUser, "Notes about the KREBS cycle")
	require.NoError(t, err)
	_, err = p.Submit(ctx, testUser, "Notes about mitosis")
	require.NoError(t, err)

	got, err := p.History(ctx, "1", "krebs")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Notes about the KREBS cycle", got[0].OriginalText)

	got, err = p.History(ctx, "1", "GLUCOSE")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = p.History(ctx, "1", "nothing matches")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSession_NotFound(t *testing.T) {
	p := newTestPipeline(&stubGateway{result: sampleResult()}, repository.NewMemoryHistoryStore(), nil)
	_, err := p.Session(context.Background(), "1", uuid.New())
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}
