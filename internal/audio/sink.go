package audio

import "context"

// Sink is an audio output device.
type Sink interface {
	// Play starts output of buf. Output continues after Play returns until
	// the buffer is exhausted, Stop is called, or ctx is cancelled.
	Play(ctx context.Context, buf *Buffer) (Stream, error)
}

// Stream is one active output.
type Stream interface {
	// Done is closed when output ends for any reason.
	Done() <-chan struct{}
	// Stop halts output and releases the device. Safe to call more than once.
	Stop()
}
