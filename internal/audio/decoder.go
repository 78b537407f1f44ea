package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Speech provider output format.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
)

// DecodeError reports malformed base64 or PCM framing.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Buffer holds normalized samples, one slice per channel.
type Buffer struct {
	SampleRate int
	Channels   int
	Frames     int
	Data       [][]float32
}

// Channel returns the samples of channel c.
func (b *Buffer) Channel(c int) []float32 {
	return b.Data[c]
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames) * time.Second / time.Duration(b.SampleRate)
}

// Float32LE encodes frames [from, to) interleaved as little-endian float32,
// the layout a Web Audio client copies straight into a Float32Array.
func (b *Buffer) Float32LE(from, to int) []byte {
	if from < 0 {
		from = 0
	}
	if to > b.Frames {
		to = b.Frames
	}
	if from >= to {
		return nil
	}

	out := make([]byte, (to-from)*b.Channels*4)
	off := 0
	for i := from; i < to; i++ {
		for c := 0; c < b.Channels; c++ {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(b.Data[c][i]))
			off += 4
		}
	}
	return out
}

// DecodeBase64 decodes a standard, padded base64 payload.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Message: "malformed base64 audio payload", Err: err}
	}
	return b, nil
}

// DecodePCM interprets data as interleaved signed 16-bit little-endian PCM and
// maps every sample to sample/32768.
func DecodePCM(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("invalid channel count %d", channels)}
	}

	frameSize := 2 * channels
	if len(data)%frameSize != 0 {
		return nil, &DecodeError{Message: fmt.Sprintf("pcm length %d is not a multiple of frame size %d", len(data), frameSize)}
	}

	totalSamples := len(data) / 2
	frames := totalSamples / channels

	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Frames:     frames,
		Data:       make([][]float32, channels),
	}
	for c := range buf.Data {
		buf.Data[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			idx := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(data[idx:]))
			buf.Data[c][i] = float32(sample) / 32768.0
		}
	}

	return buf, nil
}
