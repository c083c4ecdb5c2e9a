// Package wave serializes sample buffers to canonical PCM WAV and decodes
// audio blobs back into sample buffers.
package wave

import (
	"encoding/binary"
	"math"

	"github.com/hiway/moodreel/pkg/sample"
)

const (
	// HeaderSize is the size of the canonical WAV header.
	HeaderSize = 44
	// BitsPerSample is the only bit depth Encode writes.
	BitsPerSample = 16
	// FormatPCM is the WAVE format tag for uncompressed PCM.
	FormatPCM = 1
)

// Encode writes buf as a 16-bit PCM WAV file.
// This is a pure function: sample buffer → complete WAV bytes.
func Encode(buf *sample.Buffer) []byte {
	channels := buf.NumChannels()
	frames := buf.Frames()
	blockAlign := channels * BitsPerSample / 8
	dataSize := frames * blockAlign

	out := make([]byte, HeaderSize+dataSize)

	// RIFF header
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	// fmt subchunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], FormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(buf.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)

	// data subchunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	off := HeaderSize
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(out[off:], uint16(ToInt16(buf.Channels[ch][i])))
			off += 2
		}
	}
	return out
}

// ToInt16 converts a float sample to signed 16-bit, scaling negative values
// by 32768 and positive values by 32767.
func ToInt16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// FromInt16 is the inverse of ToInt16.
func FromInt16(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}
