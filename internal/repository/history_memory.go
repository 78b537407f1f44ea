package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
)

// MemoryHistoryStore is a process-local HistoryStore.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.StudySession
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{sessions: make(map[string][]models.StudySession)}
}

func (s *MemoryHistoryStore) Load(_ context.Context, userID string) ([]models.StudySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.sessions[userID]
	out := make([]models.StudySession, len(list))
	for i := range list {
		out[i] = cloneSession(list[i])
	}
	return out, nil
}

func (s *MemoryHistoryStore) Append(_ context.Context, userID string, session *models.StudySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneSession(*session)
	s.sessions[userID] = append([]models.StudySession{stored}, s.sessions[userID]...)
	return nil
}

func (s *MemoryHistoryStore) Get(ctx context.Context, userID string, sessionID uuid.UUID) (*models.StudySession, error) {
	sessions, _ := s.Load(ctx, userID)
	return findSession(sessions, sessionID)
}

func cloneSession(s models.StudySession) models.StudySession {
	s.Keywords = append([]string{}, s.Keywords...)
	return s
}
