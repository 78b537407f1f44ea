package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestDecodePCM_BoundaryValues(t *testing.T) {
	for _, v := range []int16{-32768, -1, 0, 1, 32767} {
		samples := []int16{v, v, v, v}
		encoded := base64.StdEncoding.EncodeToString(pcmBytes(samples...))

		raw, err := DecodeBase64(encoded)
		require.NoError(t, err)

		buf, err := DecodePCM(raw, DefaultSampleRate, DefaultChannels)
		require.NoError(t, err)
		require.Equal(t, len(samples), buf.Frames)

		for i := 0; i < buf.Frames; i++ {
			assert.Equal(t, float32(v)/32768.0, buf.Channel(0)[i], "sample %d for value %d", i, v)
		}
	}
}

func TestDecodePCM_RoundTripStereo(t *testing.T) {
	samples := []int16{100, -100, 2000, -2000, 32767, -32768}
	raw, err := DecodeBase64(base64.StdEncoding.EncodeToString(pcmBytes(samples...)))
	require.NoError(t, err)

	buf, err := DecodePCM(raw, 48000, 2)
	require.NoError(t, err)
	require.Equal(t, 3, buf.Frames)

	for i := 0; i < buf.Frames; i++ {
		for c := 0; c < 2; c++ {
			want := float32(samples[i*2+c]) / 32768.0
			assert.InDelta(t, want, buf.Channel(c)[i], 1e-7)
		}
	}
}

func TestDecodePCM_IncompleteFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		channels int
	}{
		{"odd byte mono", []byte{1, 2, 3}, 1},
		{"half frame stereo", pcmBytes(1, 2, 3), 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePCM(tc.data, DefaultSampleRate, tc.channels)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
		})
	}
}

func TestDecodePCM_InvalidFormat(t *testing.T) {
	_, err := DecodePCM(pcmBytes(1), 0, 1)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)

	_, err = DecodePCM(pcmBytes(1), DefaultSampleRate, 0)
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodePCM_Empty(t *testing.T) {
	buf, err := DecodePCM(nil, DefaultSampleRate, DefaultChannels)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Frames)
	assert.Equal(t, time.Duration(0), buf.Duration())
}

func TestDecodeBase64_Malformed(t *testing.T) {
	_, err := DecodeBase64("not-valid-base64!!")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestBuffer_Duration(t *testing.T) {
	buf, err := DecodePCM(make([]byte, DefaultSampleRate*2), DefaultSampleRate, DefaultChannels)
	require.NoError(t, err)
	assert.Equal(t, time.Second, buf.Duration())
}

func TestBuffer_Float32LE(t *testing.T) {
	buf, err := DecodePCM(pcmBytes(16384, -16384, 0), DefaultSampleRate, DefaultChannels)
	require.NoError(t, err)

	out := buf.Float32LE(1, 10)
	require.Len(t, out, 2*4)
	assert.Equal(t, uint32(0xbf000000), binary.LittleEndian.Uint32(out[0:])) // -0.5
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(out[4:]))

	assert.Nil(t, buf.Float32LE(3, 3))
}
