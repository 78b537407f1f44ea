package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// EncodeWAV renders buf as a 16-bit PCM RIFF/WAVE file.
func EncodeWAV(buf *Buffer) []byte {
	dataLen := buf.Frames * buf.Channels * 2
	blockAlign := buf.Channels * 2

	var b bytes.Buffer
	b.Grow(44 + dataLen)

	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(buf.Channels))
	binary.Write(&b, binary.LittleEndian, uint32(buf.SampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(buf.SampleRate*blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(16))

	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))

	sample := make([]byte, 2)
	for i := 0; i < buf.Frames; i++ {
		for c := 0; c < buf.Channels; c++ {
			binary.LittleEndian.PutUint16(sample, uint16(toInt16(buf.Data[c][i])))
			b.Write(sample)
		}
	}

	return b.Bytes()
}

func toInt16(v float32) int16 {
	s := math.Round(float64(v) * 32768.0)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}
