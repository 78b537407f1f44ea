package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

const validAnalysisJSON = `{
	"summary": "- ATP is produced in mitochondria",
	"simpleExplanation": "Cells make energy in tiny power plants.",
	"questions": "1. Where is ATP made?",
	"score": 86.6,
	"feedback": "Clear and short.",
	"keywords": ["ATP", "mitochondria"],
	"difficulty": "Medium",
	"readingTime": "3 mins"
}`

type fakeGenerator struct {
	text  string
	err   error
	block bool
	calls int
	last  string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.calls++
	if len(parts) > 0 {
		if t, ok := parts[0].(genai.Text); ok {
			f.last = string(t)
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text(f.text)}},
			FinishReason: genai.FinishReasonStop,
		}},
	}, nil
}

type fakeSynth struct {
	audio string
	err   error
	block bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.audio, f.err
}

func TestDecodeAnalysis_Valid(t *testing.T) {
	res, err := decodeAnalysis("```json\n" + validAnalysisJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, 87, res.Score)
	assert.Equal(t, models.DifficultyMedium, res.Difficulty)
	assert.Equal(t, []string{"ATP", "mitochondria"}, res.Keywords)
	assert.Equal(t, "3 mins", res.ReadingTime)
}

func TestDecodeAnalysis_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing difficulty", `{"summary":"s","simpleExplanation":"e","questions":"q","score":50,"feedback":"f","keywords":[],"readingTime":"1 min"}`, "difficulty"},
		{"missing score", `{"summary":"s","simpleExplanation":"e","questions":"q","feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "score"},
		{"empty summary", `{"summary":"  ","simpleExplanation":"e","questions":"q","score":50,"feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "summary"},
		{"null keywords", `{"summary":"s","simpleExplanation":"e","questions":"q","score":50,"feedback":"f","keywords":null,"difficulty":"Easy","readingTime":"1 min"}`, "keywords"},
		{"score out of range", `{"summary":"s","simpleExplanation":"e","questions":"q","score":140,"feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "score"},
		{"score just above range", `{"summary":"s","simpleExplanation":"e","questions":"q","score":100.4,"feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "score"},
		{"score just below range", `{"summary":"s","simpleExplanation":"e","questions":"q","score":-0.4,"feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "score"},
		{"blank keyword", `{"summary":"s","simpleExplanation":"e","questions":"q","score":50,"feedback":"f","keywords":["ATP","  "],"difficulty":"Easy","readingTime":"1 min"}`, "empty keyword at position 1"},
		{"unknown difficulty", `{"summary":"s","simpleExplanation":"e","questions":"q","score":50,"feedback":"f","keywords":[],"difficulty":"Extreme","readingTime":"1 min"}`, "difficulty"},
		{"score as string", `{"summary":"s","simpleExplanation":"e","questions":"q","score":"50","feedback":"f","keywords":[],"difficulty":"Easy","readingTime":"1 min"}`, "malformed"},
		{"not json", `Sorry, I cannot help with that.`, "malformed"},
		{"empty", ``, "empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := decodeAnalysis(tc.raw)
			assert.Nil(t, res)
			var aiErr *AIRequestError
			require.True(t, errors.As(err, &aiErr))
			assert.Contains(t, aiErr.Message, tc.want)
		})
	}
}

func TestGeminiGateway_Analyze(t *testing.T) {
	gen := &fakeGenerator{text: validAnalysisJSON}
	g := newGateway(gen, &fakeSynth{}, 2, time.Second, time.Second, logger.Nop())

	res, err := g.Analyze(context.Background(), "Mitochondria make ATP.")
	require.NoError(t, err)
	assert.Equal(t, "Clear and short.", res.Feedback)
	assert.Contains(t, gen.last, "Mitochondria make ATP.")
	assert.Len(t, g.rateChan, 2)
}

func TestGeminiGateway_ProviderErrorVerbatim(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("googleapi: Error 400: API key not valid")}
	g := newGateway(gen, &fakeSynth{}, 1, time.Second, time.Second, logger.Nop())

	_, err := g.Analyze(context.Background(), "x")
	var aiErr *AIRequestError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, "googleapi: Error 400: API key not valid", aiErr.Message)
}

func TestGeminiGateway_Timeout(t *testing.T) {
	g := newGateway(&fakeGenerator{block: true}, &fakeSynth{block: true}, 1, 20*time.Millisecond, 20*time.Millisecond, logger.Nop())

	_, err := g.Analyze(context.Background(), "x")
	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "analyze", tErr.Op)

	_, err = g.SynthesizeSpeech(context.Background(), "x")
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "synthesize speech", tErr.Op)
	assert.Len(t, g.rateChan, 1)
}

func TestGeminiGateway_CallerCancelIsNotTimeout(t *testing.T) {
	g := newGateway(&fakeGenerator{block: true}, &fakeSynth{}, 1, time.Minute, time.Minute, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Analyze(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	var tErr *TimeoutError
	assert.False(t, errors.As(err, &tErr))
}

func TestGeminiGateway_SynthesizeSpeech(t *testing.T) {
	g := newGateway(&fakeGenerator{}, &fakeSynth{audio: "AAAA"}, 1, time.Second, time.Second, logger.Nop())
	audio, err := g.SynthesizeSpeech(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", audio)
}

func TestDecodeAnalysis_ScoreBounds(t *testing.T) {
	for raw, want := range map[string]int{"0": 0, "100": 100, "99.6": 100, "0.4": 0} {
		res, err := decodeAnalysis(`{"summary":"s","simpleExplanation":"e","questions":"q","score":` + raw + `,"feedback":"f","keywords":[" ATP "],"difficulty":"Easy","readingTime":"1 min"}`)
		require.NoError(t, err, raw)
		assert.Equal(t, want, res.Score, raw)
		assert.Equal(t, []string{"ATP"}, res.Keywords)
	}
}
