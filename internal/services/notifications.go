package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

type jobCtxKey struct{}

// WithJobID tags ctx so events emitted during a job carry its id.
func WithJobID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, id)
}

func jobIDFrom(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(jobCtxKey{}).(uuid.UUID); ok {
		return &id
	}
	return nil
}

func UserChannel(userID string) string {
	return "user_updates:" + userID
}

// Notifier fans events out to a user's websocket connections through Redis
// pub/sub, so any API instance can reach any connected client.
type Notifier struct {
	redis *redis.Client
	log   *logger.Logger
}

var _ SubmitObserver = (*Notifier)(nil)

func NewNotifier(redisClient *redis.Client, log *logger.Logger) *Notifier {
	return &Notifier{redis: redisClient, log: log}
}

func (n *Notifier) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Error("failed to encode event", "type", msg.Type, "error", err)
		return
	}
	if err := n.redis.Publish(context.WithoutCancel(ctx), UserChannel(userID), data).Err(); err != nil {
		n.log.Warn("failed to publish event", "user_id", userID, "type", msg.Type, "error", err)
	}
}

func (n *Notifier) SubmitStateChanged(ctx context.Context, user models.User, state models.SubmitState) {
	n.Publish(ctx, user.ID, models.WSMessage{
		Type:    "submit_state",
		Payload: models.StatusUpdate{State: state, JobID: jobIDFrom(ctx)},
	})
}

func (n *Notifier) PersistenceFailed(ctx context.Context, user models.User, session *models.StudySession, err *PersistenceError) {
	n.Publish(ctx, user.ID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        jobIDFrom(ctx),
			SessionID:    &session.ID,
			ErrorCode:    "PERSISTENCE_FAILED",
			ErrorMessage: "Your result is ready but could not be saved to history.",
		},
	})
}

func (n *Notifier) PlaybackStateChanged(userID string, state models.PlaybackState) {
	n.Publish(context.Background(), userID, models.WSMessage{
		Type:    "playback_state",
		Payload: models.PlaybackUpdate{State: state},
	})
}

func (n *Notifier) JobCompleted(ctx context.Context, userID string, jobID, sessionID uuid.UUID) {
	n.Publish(ctx, userID, models.WSMessage{
		Type:    "completed",
		Payload: models.CompletedEvent{JobID: jobID, SessionID: sessionID},
	})
}

func (n *Notifier) JobFailed(ctx context.Context, userID string, jobID uuid.UUID, code, message string) {
	n.Publish(ctx, userID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        &jobID,
			ErrorCode:    code,
			ErrorMessage: message,
		},
	})
}
