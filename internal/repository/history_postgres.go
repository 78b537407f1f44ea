package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

// PostgresHistoryStore stores one row per session; seq gives insertion order.
type PostgresHistoryStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresHistoryStore(pool *pgxpool.Pool, log *logger.Logger) *PostgresHistoryStore {
	return &PostgresHistoryStore{pool: pool, log: log}
}

const sessionColumns = `id, user_id, original_text, summary, simple_explanation, questions,
	speech_score, speech_feedback, keywords, difficulty, reading_time, created_at`

func (r *PostgresHistoryStore) Append(ctx context.Context, userID string, s *models.StudySession) error {
	keywords, err := json.Marshal(nonNilKeywords(s.Keywords))
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	query := `INSERT INTO study_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		s.ID, userID, s.OriginalText, s.Summary, s.SimpleExplanation, s.Questions,
		s.SpeechScore, s.SpeechFeedback, keywords, string(s.Difficulty), s.ReadingTime, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert study session: %w", err)
	}
	return nil
}

func (r *PostgresHistoryStore) Load(ctx context.Context, userID string) ([]models.StudySession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query study sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.StudySession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			r.log.Warn("skipping unreadable study session row", "user_id", userID, "error", err)
			continue
		}
		if err := validateSession(s); err != nil {
			r.log.Warn("skipping invalid study session row", "user_id", userID, "session_id", s.ID, "error", err)
			continue
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *PostgresHistoryStore) Get(ctx context.Context, userID string, sessionID uuid.UUID) (*models.StudySession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = $1 AND id = $2 ORDER BY seq DESC LIMIT 1`,
		userID, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study session: %w", err)
	}
	if err := validateSession(s); err != nil {
		r.log.Warn("invalid study session row", "user_id", userID, "session_id", s.ID, "error", err)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func scanSession(row pgx.Row) (*models.StudySession, error) {
	var (
		s          models.StudySession
		keywords   []byte
		difficulty string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.OriginalText, &s.Summary, &s.SimpleExplanation, &s.Questions,
		&s.SpeechScore, &s.SpeechFeedback, &keywords, &difficulty, &s.ReadingTime, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Difficulty = models.Difficulty(difficulty)
	if err := json.Unmarshal(keywords, &s.Keywords); err != nil {
		return nil, fmt.Errorf("bad keywords column: %w", err)
	}
	s.Keywords = nonNilKeywords(s.Keywords)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func nonNilKeywords(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
