package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studybuddy-backend/internal/audio"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
)

type studyPipeline interface {
	Submit(ctx context.Context, user models.User, rawText string) (*models.StudySession, error)
	History(ctx context.Context, userID, query string) ([]models.StudySession, error)
	Session(ctx context.Context, userID string, id uuid.UUID) (*models.StudySession, error)
}

type speechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}

type jobCreator interface {
	Create(ctx context.Context, j *models.Job) error
}

type StudyHandler struct {
	pipeline   studyPipeline
	speech     speechSynthesizer
	jobs       jobCreator
	sampleRate int
	channels   int
}

func NewStudyHandler(pipeline studyPipeline, speech speechSynthesizer, jobs jobCreator, sampleRate, channels int) *StudyHandler {
	return &StudyHandler{
		pipeline:   pipeline,
		speech:     speech,
		jobs:       jobs,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Process runs an analysis inline, or queues it when async is set.
func (h *StudyHandler) Process(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Async {
		if strings.TrimSpace(req.Text) == "" {
			handleServiceError(w, r, &services.ValidationError{Fields: map[string]string{"text": "Study material is required"}})
			return
		}
		job := &models.Job{User: user, Text: req.Text}
		if err := h.jobs.Create(r.Context(), job); err != nil {
			log.Error("failed to enqueue analysis", "user_id", user.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue analysis", r))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
		return
	}

	session, err := h.pipeline.Submit(r.Context(), user, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// Speech returns synthesized narration, as base64 PCM or as a WAV file with
// ?format=wav.
func (h *StudyHandler) Speech(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	var req models.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		handleServiceError(w, r, &services.ValidationError{Fields: map[string]string{"text": "Text is required"}})
		return
	}

	encoded, err := h.speech.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	raw, err := audio.DecodeBase64(encoded)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	buf, err := audio.DecodePCM(raw, h.sampleRate, h.channels)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "wav" {
		wav := audio.EncodeWAV(buf)
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
		w.WriteHeader(http.StatusOK)
		w.Write(wav)
		return
	}

	writeJSON(w, http.StatusOK, models.SpeechResponse{
		Audio:      encoded,
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		DurationMs: buf.Duration().Milliseconds(),
	})
}

func (h *StudyHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.pipeline.History(r.Context(), user.ID, r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.StudySession{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *StudyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	session, err := h.pipeline.Session(r.Context(), user.ID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}
