package models

import (
	"time"

	"github.com/google/uuid"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// StudySession is one AI-assisted study interaction. It is never updated in
// place; a correction is a new session.
type StudySession struct {
	ID                uuid.UUID  `json:"id"`
	UserID            string     `json:"userId"`
	OriginalText      string     `json:"originalText"`
	Summary           string     `json:"summary"`
	SimpleExplanation string     `json:"simpleExplanation"`
	Questions         string     `json:"questions"`
	SpeechScore       int        `json:"speechScore"`
	SpeechFeedback    string     `json:"speechFeedback"`
	Keywords          []string   `json:"keywords"`
	Difficulty        Difficulty `json:"difficulty"`
	ReadingTime       string     `json:"readingTime"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// AIAnalysisResult is the decoded analysis for one request. It is consumed
// once to build a StudySession.
type AIAnalysisResult struct {
	Summary           string     `json:"summary"`
	SimpleExplanation string     `json:"simpleExplanation"`
	Questions         string     `json:"questions"`
	Score             int        `json:"score"`
	Feedback          string     `json:"feedback"`
	Keywords          []string   `json:"keywords"`
	Difficulty        Difficulty `json:"difficulty"`
	ReadingTime       string     `json:"readingTime"`
}

type ProcessRequest struct {
	Text  string `json:"text"`
	Async bool   `json:"async"`
}

type SpeechRequest struct {
	Text string `json:"text"`
}

type SpeechResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	DurationMs int64  `json:"duration_ms"`
}

type PlayRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// SubmitState tracks one SessionPipeline invocation.
type SubmitState string

const (
	SubmitIdle       SubmitState = "idle"
	SubmitSubmitting SubmitState = "submitting"
	SubmitSucceeded  SubmitState = "succeeded"
	SubmitFailed     SubmitState = "failed"
)

type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
)
