package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

const maxAppendRetries = 10

var ErrAppendConflict = errors.New("history append kept conflicting with concurrent writers")

// RedisHistoryStore keeps one envelope per user under history_<userId>.
type RedisHistoryStore struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewRedisHistoryStore(rdb *redis.Client, log *logger.Logger) *RedisHistoryStore {
	return &RedisHistoryStore{rdb: rdb, log: log}
}

func (s *RedisHistoryStore) Load(ctx context.Context, userID string) ([]models.StudySession, error) {
	raw, err := s.rdb.Get(ctx, historyKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.StudySession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries, _, err := decodeEnvelope(raw)
	if err != nil {
		s.log.Error("history payload unreadable", "user_id", userID, "error", err)
		return []models.StudySession{}, nil
	}
	return decodeSessions(s.log, userID, entries), nil
}

// Append prepends session inside a WATCH/MULTI transaction. Entries it did
// not write are carried over byte for byte.
func (s *RedisHistoryStore) Append(ctx context.Context, userID string, session *models.StudySession) error {
	entry, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	key := historyKey(userID)

	txf := func(tx *redis.Tx) error {
		var existing []json.RawMessage
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			existing, _, err = decodeEnvelope(raw)
			if err != nil {
				return err
			}
		}

		entries := make([]json.RawMessage, 0, len(existing)+1)
		entries = append(entries, entry)
		entries = append(entries, existing...)
		payload, err := encodeEnvelope(entries)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxAppendRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return ErrAppendConflict
}

func (s *RedisHistoryStore) Get(ctx context.Context, userID string, sessionID uuid.UUID) (*models.StudySession, error) {
	sessions, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return findSession(sessions, sessionID)
}
