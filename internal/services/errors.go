package services

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValidationError carries per-field messages; the caller's input was wrong
// and no downstream call was made.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// AIRequestError is a failed or unusable analysis call. Message is shown to
// the user as is.
type AIRequestError struct {
	Message string
	Err     error
}

func (e *AIRequestError) Error() string { return e.Message }
func (e *AIRequestError) Unwrap() error { return e.Err }

type SpeechSynthesisError struct {
	Message string
	Err     error
}

func (e *SpeechSynthesisError) Error() string { return e.Message }
func (e *SpeechSynthesisError) Unwrap() error { return e.Err }

// PersistenceError reports a failed history write or an unreachable lock store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// BusyError is returned when the same operation is already in flight.
type BusyError struct{ Message string }

func (e *BusyError) Error() string { return e.Message }

// PlaybackError wraps whatever broke the play chain.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return "playback failed: " + e.Err.Error() }
func (e *PlaybackError) Unwrap() error { return e.Err }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }
