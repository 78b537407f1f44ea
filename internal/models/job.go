package models

import (
	"time"

	"github.com/google/uuid"
)

// Job is an asynchronous analysis request.
type Job struct {
	ID        uuid.UUID  `json:"id"`
	User      User       `json:"user"`
	Text      string     `json:"text,omitempty"`
	Status    string     `json:"status"` // "pending" | "processing" | "completed" | "failed"
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Error     *string    `json:"error,omitempty"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	State SubmitState `json:"state"`
	JobID *uuid.UUID  `json:"job_id,omitempty"`
}

type PlaybackUpdate struct {
	State PlaybackState `json:"state"`
}

type CompletedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	SessionID uuid.UUID `json:"session_id"`
}

type ErrorEvent struct {
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	ErrorCode    string     `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
