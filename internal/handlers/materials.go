package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
)

type materialSource interface {
	FromFile(name string, data []byte) (*models.Material, error)
	FromYouTube(ctx context.Context, url string) (*models.Material, error)
}

type MaterialsHandler struct {
	materials materialSource
}

func NewMaterialsHandler(materials materialSource) *MaterialsHandler {
	return &MaterialsHandler{materials: materials}
}

// Upload extracts study text from a .txt, .md, .pdf or .docx file.
func (h *MaterialsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > services.MaxUploadBytes+1<<20 {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 10MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	if !services.SupportedExtension(header.Filename) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "File type not supported", r))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, services.MaxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read file", r))
		return
	}

	material, err := h.materials.FromFile(header.Filename, data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, material)
}

func (h *MaterialsHandler) YouTube(w http.ResponseWriter, r *http.Request) {
	var req models.YouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	material, err := h.materials.FromYouTube(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// SupportedFormats lists the upload types Upload accepts.
func (h *MaterialsHandler) SupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": []map[string]string{
			{"extension": ".pdf", "mime_type": "application/pdf", "description": "PDF Document"},
			{"extension": ".docx", "mime_type": "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "description": "Word Document"},
			{"extension": ".txt", "mime_type": "text/plain", "description": "Plain Text"},
			{"extension": ".md", "mime_type": "text/markdown", "description": "Markdown"},
		},
		"max_bytes": services.MaxUploadBytes,
	})
}
