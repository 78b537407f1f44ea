package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
)

type playerRegistry interface {
	For(userID string) *services.PlaybackController
}

type sessionReader interface {
	Session(ctx context.Context, userID string, id uuid.UUID) (*models.StudySession, error)
}

// PlaybackHandler drives the per-user narration controller. Audio goes out
// over the user's websocket; these endpoints only move the state machine.
type PlaybackHandler struct {
	players  playerRegistry
	sessions sessionReader
}

func NewPlaybackHandler(players playerRegistry, sessions sessionReader) *PlaybackHandler {
	return &PlaybackHandler{players: players, sessions: sessions}
}

func (h *PlaybackHandler) Play(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	text := req.Text
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
			return
		}
		session, err := h.sessions.Session(r.Context(), user.ID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		text = session.Summary
	}

	player := h.players.For(user.ID)
	// A second play while playing is a stop and needs no text.
	if strings.TrimSpace(text) == "" && player.State() != models.PlaybackPlaying {
		handleServiceError(w, r, &services.ValidationError{Fields: map[string]string{"text": "Nothing to read"}})
		return
	}

	state, err := player.Play(r.Context(), text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

func (h *PlaybackHandler) Stop(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": h.players.For(user.ID).Stop()})
}

func (h *PlaybackHandler) State(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": h.players.For(user.ID).State()})
}
