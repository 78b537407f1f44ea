package services

import (
	"context"
	"path/filepath"
	"strings"

	"studybuddy-backend/internal/models"
)

type transcriptSource interface {
	GetTranscript(videoID string) (string, error)
	Title(videoID string) string
}

// MaterialService turns uploads and videos into study text. It never runs
// an analysis itself.
type MaterialService struct {
	files   *FileExtractService
	youtube transcriptSource
}

func NewMaterialService(files *FileExtractService, youtube transcriptSource) *MaterialService {
	return &MaterialService{files: files, youtube: youtube}
}

func (s *MaterialService) FromFile(name string, data []byte) (*models.Material, error) {
	if len(data) > MaxUploadBytes {
		return nil, &ValidationError{Fields: map[string]string{"file": "File is larger than 10 MB"}}
	}
	text, err := s.files.ExtractText(name, data)
	if err != nil {
		return nil, err
	}
	return &models.Material{
		Source:    "file",
		Title:     strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)),
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}, nil
}

func (s *MaterialService) FromYouTube(ctx context.Context, url string) (*models.Material, error) {
	videoID, err := VideoID(url)
	if err != nil {
		return nil, err
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := s.youtube.GetTranscript(videoID)
		ch <- result{text, err}
	}()

	var text string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, &NotFoundError{Message: "No transcript is available for this video"}
		}
		text = r.text
	}

	return &models.Material{
		Source:    "youtube",
		Title:     s.youtube.Title(videoID),
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}, nil
}
