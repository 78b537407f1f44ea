package websocket

import (
	"context"
	"sync"
	"time"

	"studybuddy-backend/internal/audio"
	"studybuddy-backend/internal/models"
)

// chunkDuration is how much audio goes in one binary frame.
const chunkDuration = 100 * time.Millisecond

type audioStart struct {
	SampleRate int   `json:"sample_rate"`
	Channels   int   `json:"channels"`
	Frames     int   `json:"frames"`
	DurationMs int64 `json:"duration_ms"`
}

type audioEnd struct {
	Completed bool `json:"completed"`
}

// AudioSink plays a buffer by streaming interleaved float32 LE frames to the
// user's websocket clients in real time.
type AudioSink struct {
	hub    *Hub
	userID string
	tick   time.Duration
}

func NewAudioSink(hub *Hub, userID string) *AudioSink {
	return &AudioSink{hub: hub, userID: userID, tick: chunkDuration}
}

func (s *AudioSink) Play(ctx context.Context, buf *audio.Buffer) (audio.Stream, error) {
	err := s.hub.SendToUser(s.userID, models.WSMessage{
		Type: "audio_start",
		Payload: audioStart{
			SampleRate: buf.SampleRate,
			Channels:   buf.Channels,
			Frames:     buf.Frames,
			DurationMs: buf.Duration().Milliseconds(),
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &stream{done: make(chan struct{}), cancel: cancel}
	go s.run(ctx, st, buf)
	return st, nil
}

func (s *AudioSink) run(ctx context.Context, st *stream, buf *audio.Buffer) {
	defer close(st.done)

	framesPerChunk := buf.SampleRate * int(chunkDuration/time.Millisecond) / 1000
	if framesPerChunk <= 0 {
		framesPerChunk = 1
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	completed := false
	for from := 0; ; from += framesPerChunk {
		if from >= buf.Frames {
			completed = true
			break
		}
		if err := s.hub.SendBinary(s.userID, buf.Float32LE(from, from+framesPerChunk)); err != nil {
			// Every listener went away.
			return
		}
		select {
		case <-ctx.Done():
			s.hub.SendToUser(s.userID, models.WSMessage{Type: "audio_end", Payload: audioEnd{Completed: false}})
			return
		case <-ticker.C:
		}
	}

	s.hub.SendToUser(s.userID, models.WSMessage{Type: "audio_end", Payload: audioEnd{Completed: completed}})
}

type stream struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Stop() {
	s.once.Do(s.cancel)
}
