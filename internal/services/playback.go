package services

import (
	"context"
	"errors"
	"sync"

	"studybuddy-backend/internal/audio"
	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

// PlaybackController narrates text through an audio sink, one playback at a
// time: stopped -> loading -> playing -> stopped.
type PlaybackController struct {
	gateway    Gateway
	sink       audio.Sink
	sampleRate int
	channels   int
	onState    func(models.PlaybackState)
	log        *logger.Logger

	mu         sync.Mutex
	state      models.PlaybackState
	gen        uint64 // bumped on every transition out of loading/playing
	cancelLoad context.CancelFunc
	stream     audio.Stream
	cancelOut  context.CancelFunc
}

type PlaybackOption func(*PlaybackController)

// WithFormat overrides the PCM format the speech provider returns.
func WithFormat(sampleRate, channels int) PlaybackOption {
	return func(c *PlaybackController) {
		c.sampleRate = sampleRate
		c.channels = channels
	}
}

// WithStateListener is called after every state change, outside the lock.
func WithStateListener(fn func(models.PlaybackState)) PlaybackOption {
	return func(c *PlaybackController) { c.onState = fn }
}

func NewPlaybackController(gateway Gateway, sink audio.Sink, log *logger.Logger, opts ...PlaybackOption) *PlaybackController {
	c := &PlaybackController{
		gateway:    gateway,
		sink:       sink,
		sampleRate: audio.DefaultSampleRate,
		channels:   audio.DefaultChannels,
		log:        log,
		state:      models.PlaybackStopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PlaybackController) State() models.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Play starts narrating text and returns once output has begun. Calling Play
// while playing stops output instead. Calling it while loading is rejected
// with BusyError.
func (c *PlaybackController) Play(ctx context.Context, text string) (models.PlaybackState, error) {
	c.mu.Lock()
	switch c.state {
	case models.PlaybackPlaying:
		c.haltLocked()
		c.mu.Unlock()
		c.notify(models.PlaybackStopped)
		return models.PlaybackStopped, nil
	case models.PlaybackLoading:
		c.mu.Unlock()
		return models.PlaybackLoading, &BusyError{Message: "Speech is still loading"}
	}

	loadCtx, cancel := context.WithCancel(ctx)
	c.state = models.PlaybackLoading
	c.gen++
	gen := c.gen
	c.cancelLoad = cancel
	c.mu.Unlock()
	c.notify(models.PlaybackLoading)

	buf, err := c.load(loadCtx, text)
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		// Stop was called while loading; the result is discarded.
		c.mu.Unlock()
		return models.PlaybackStopped, nil
	}
	c.cancelLoad = nil
	if err != nil {
		c.log.Warn("speech playback failed", "error", err)
		c.state = models.PlaybackStopped
		c.mu.Unlock()
		c.notify(models.PlaybackStopped)
		return models.PlaybackStopped, &PlaybackError{Err: err}
	}

	// Output outlives the request that started it.
	outCtx, cancelOut := context.WithCancel(context.Background())
	stream, err := c.sink.Play(outCtx, buf)
	if err != nil {
		cancelOut()
		c.log.Warn("audio sink refused playback", "error", err)
		c.state = models.PlaybackStopped
		c.mu.Unlock()
		c.notify(models.PlaybackStopped)
		return models.PlaybackStopped, &PlaybackError{Err: err}
	}
	c.stream = stream
	c.cancelOut = cancelOut
	c.state = models.PlaybackPlaying
	c.mu.Unlock()
	c.notify(models.PlaybackPlaying)

	go c.watch(gen, stream)
	return models.PlaybackPlaying, nil
}

func (c *PlaybackController) load(ctx context.Context, text string) (*audio.Buffer, error) {
	if text == "" {
		return nil, errors.New("nothing to read")
	}
	encoded, err := c.gateway.SynthesizeSpeech(ctx, text)
	if err != nil {
		return nil, err
	}
	raw, err := audio.DecodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	return audio.DecodePCM(raw, c.sampleRate, c.channels)
}

// watch moves to stopped when the stream ends on its own.
func (c *PlaybackController) watch(gen uint64, stream audio.Stream) {
	<-stream.Done()

	c.mu.Lock()
	if c.gen != gen || c.state != models.PlaybackPlaying {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	c.mu.Unlock()
	c.notify(models.PlaybackStopped)
}

// Stop halts output or abandons a pending load.
func (c *PlaybackController) Stop() models.PlaybackState {
	c.mu.Lock()
	if c.state == models.PlaybackStopped {
		c.mu.Unlock()
		return models.PlaybackStopped
	}
	c.haltLocked()
	c.mu.Unlock()
	c.notify(models.PlaybackStopped)
	return models.PlaybackStopped
}

func (c *PlaybackController) haltLocked() {
	c.gen++
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	if c.cancelOut != nil {
		c.cancelOut()
		c.cancelOut = nil
	}
	c.state = models.PlaybackStopped
}

func (c *PlaybackController) notify(state models.PlaybackState) {
	if c.onState != nil {
		c.onState(state)
	}
}

// PlaybackRegistry keeps one controller per user.
type PlaybackRegistry struct {
	gateway Gateway
	sinks   func(userID string) audio.Sink
	opts    []PlaybackOption
	onState func(userID string, state models.PlaybackState)
	log     *logger.Logger

	mu      sync.Mutex
	players map[string]*PlaybackController
}

func NewPlaybackRegistry(gateway Gateway, sinks func(userID string) audio.Sink, onState func(userID string, state models.PlaybackState), log *logger.Logger, opts ...PlaybackOption) *PlaybackRegistry {
	return &PlaybackRegistry{
		gateway: gateway,
		sinks:   sinks,
		opts:    opts,
		onState: onState,
		log:     log,
		players: make(map[string]*PlaybackController),
	}
}

func (r *PlaybackRegistry) For(userID string) *PlaybackController {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.players[userID]; ok {
		return c
	}
	opts := append([]PlaybackOption{}, r.opts...)
	if r.onState != nil {
		opts = append(opts, WithStateListener(func(s models.PlaybackState) { r.onState(userID, s) }))
	}
	c := NewPlaybackController(r.gateway, r.sinks(userID), r.log.With("user_id", userID), opts...)
	r.players[userID] = c
	return c
}

// StopAll halts every controller, used on shutdown.
func (r *PlaybackRegistry) StopAll() {
	r.mu.Lock()
	players := make([]*PlaybackController, 0, len(r.players))
	for _, c := range r.players {
		players = append(players, c)
	}
	r.mu.Unlock()

	for _, c := range players {
		c.Stop()
	}
}
