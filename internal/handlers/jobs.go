package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/repository"
)

type jobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type JobsHandler struct {
	jobs jobReader
}

func NewJobsHandler(jobs jobReader) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) || (err == nil && job.User.ID != user.ID) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	job.Text = ""
	writeJSON(w, http.StatusOK, job)
}
