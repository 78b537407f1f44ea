package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy-backend/internal/logger"
)

func newTestSpeechClient(t *testing.T, h http.HandlerFunc) *SpeechClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewSpeechClient("test-key", "models/gemini-2.5-flash-preview-tts", "Kore")
	require.NoError(t, err)
	c.baseURL = srv.URL
	return c
}

func TestSpeechClient_ReturnsInlineAudio(t *testing.T) {
	c := newTestSpeechClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash-preview-tts:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"AUDIO"}, req.GenerationConfig.ResponseModalities)
		assert.Equal(t, "Kore", req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "Read this study summary clearly and encouragingly: Mitochondria", req.Contents[0].Parts[0].Text)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AAAA"}}]}}]}`))
	})

	audio, err := c.Synthesize(context.Background(), "Mitochondria")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", audio)
}

func TestSpeechClient_NoAudio(t *testing.T) {
	bodies := map[string]string{
		"no candidates":    `{"candidates":[]}`,
		"no parts":         `{"candidates":[{"content":{"parts":[]}}]}`,
		"null inline data": `{"candidates":[{"content":{"parts":[{"inlineData":null}]}}]}`,
		"text only":        `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newTestSpeechClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})

			_, err := c.Synthesize(context.Background(), "x")
			var synthErr *SpeechSynthesisError
			require.True(t, errors.As(err, &synthErr))
			assert.Equal(t, "No audio generated", synthErr.Message)
		})
	}
}

func TestSpeechClient_ProviderErrorPassedThrough(t *testing.T) {
	c := newTestSpeechClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key."}}`))
	})

	_, err := c.Synthesize(context.Background(), "x")
	var synthErr *SpeechSynthesisError
	require.True(t, errors.As(err, &synthErr))
	assert.Equal(t, "API key not valid. Please pass a valid API key.", synthErr.Error())
}

func TestNewSpeechClient_RequiresKey(t *testing.T) {
	_, err := NewSpeechClient("  ", "m", "Kore")
	assert.Error(t, err)
}

func TestGeminiGateway_SlowSpeechProviderTimesOut(t *testing.T) {
	c := newTestSpeechClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
			w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16","data":"AAAA"}}]}}]}`))
		case <-r.Context().Done():
		}
	})
	g := newGateway(&fakeGenerator{}, c, 1, time.Second, 50*time.Millisecond, logger.Nop())

	_, err := g.SynthesizeSpeech(context.Background(), "x")
	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr), "got %T: %v", err, err)
	assert.Equal(t, "synthesize speech", tErr.Op)
	assert.Equal(t, 50*time.Millisecond, tErr.After)

	var synthErr *SpeechSynthesisError
	assert.False(t, errors.As(err, &synthErr))
}

func TestNewSpeechClient_NoClientTimeout(t *testing.T) {
	c, err := NewSpeechClient("k", "m", "Kore")
	require.NoError(t, err)
	assert.Zero(t, c.httpClient.Timeout)
}
