package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

// HistoryVersion is the envelope version written by Append.
const HistoryVersion = 1

var (
	ErrSessionNotFound    = errors.New("study session not found")
	ErrUnsupportedHistory = errors.New("unsupported history payload")
)

// HistoryStore persists a user's study sessions, most recent first.
type HistoryStore interface {
	// Load returns the user's sessions, most recent first. An unknown user
	// yields an empty list.
	Load(ctx context.Context, userID string) ([]models.StudySession, error)
	// Append makes session the new first entry. Not idempotent.
	Append(ctx context.Context, userID string, session *models.StudySession) error
	Get(ctx context.Context, userID string, sessionID uuid.UUID) (*models.StudySession, error)
}

func historyKey(userID string) string {
	return "history_" + userID
}

type historyEnvelope struct {
	Version  int               `json:"version"`
	Sessions []json.RawMessage `json:"sessions"`
}

// decodeEnvelope returns the raw entries of a stored payload. A bare JSON
// array is the pre-versioned layout and reads as version 0.
func decodeEnvelope(raw []byte) ([]json.RawMessage, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, HistoryVersion, nil
	}

	switch trimmed[0] {
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedHistory, err)
		}
		return entries, 0, nil
	case '{':
		var env historyEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedHistory, err)
		}
		if env.Version > HistoryVersion {
			return nil, env.Version, fmt.Errorf("%w: version %d", ErrUnsupportedHistory, env.Version)
		}
		return env.Sessions, env.Version, nil
	default:
		return nil, 0, fmt.Errorf("%w: unexpected leading byte %q", ErrUnsupportedHistory, trimmed[0])
	}
}

func encodeEnvelope(entries []json.RawMessage) ([]byte, error) {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return json.Marshal(historyEnvelope{Version: HistoryVersion, Sessions: entries})
}

// decodeSessions keeps the entries that pass validateSession and logs the rest.
func decodeSessions(log *logger.Logger, userID string, entries []json.RawMessage) []models.StudySession {
	sessions := make([]models.StudySession, 0, len(entries))
	for i, entry := range entries {
		var s models.StudySession
		if err := json.Unmarshal(entry, &s); err != nil {
			log.Warn("skipping unreadable history record", "user_id", userID, "index", i, "error", err)
			continue
		}
		if err := validateSession(&s); err != nil {
			log.Warn("skipping invalid history record", "user_id", userID, "index", i, "error", err)
			continue
		}
		if s.Keywords == nil {
			s.Keywords = []string{}
		}
		sessions = append(sessions, s)
	}
	return sessions
}

func validateSession(s *models.StudySession) error {
	var missing []string
	if s.ID == uuid.Nil {
		missing = append(missing, "id")
	}
	if s.CreatedAt.IsZero() {
		missing = append(missing, "createdAt")
	}
	if strings.TrimSpace(s.OriginalText) == "" {
		missing = append(missing, "originalText")
	}
	if strings.TrimSpace(s.Summary) == "" {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if s.SpeechScore < 0 || s.SpeechScore > 100 {
		return fmt.Errorf("speechScore %d out of range", s.SpeechScore)
	}
	if !s.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", s.Difficulty)
	}
	return nil
}

func findSession(sessions []models.StudySession, id uuid.UUID) (*models.StudySession, error) {
	for i := range sessions {
		if sessions[i].ID == id {
			s := sessions[i]
			return &s, nil
		}
	}
	return nil, ErrSessionNotFound
}
