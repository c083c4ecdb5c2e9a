package wave

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/hiway/moodreel/pkg/sample"
)

// ErrDecode reports malformed or unsupported audio bytes.
var ErrDecode = errors.New("decode failure")

const wavFormatExtensible = 0xFFFE

// Decode turns an audio blob into a sample buffer. WAV (PCM, 8 to 32 bit)
// and MP3 are supported. Every failure wraps ErrDecode.
func Decode(data []byte) (*sample.Buffer, error) {
	var (
		buf *sample.Buffer
		err error
	)
	switch {
	case isWAV(data):
		buf, err = decodeWAV(data)
	case isMP3(data):
		buf, err = decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized audio container", ErrDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}
	return buf, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(data []byte) (*sample.Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	if d.WavAudioFormat != FormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("unsupported WAV format tag %d", d.WavAudioFormat)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return nil, errors.New("WAV header has no channels or sample rate")
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	flat, err := pcmToFloat(pcm, int(d.BitDepth))
	if err != nil {
		return nil, err
	}
	return sample.Deinterleave(flat, int(d.NumChans), int(d.SampleRate)), nil
}

func pcmToFloat(pcm *audio.IntBuffer, bitDepth int) ([]float32, error) {
	flat := make([]float32, len(pcm.Data))
	switch bitDepth {
	case 8:
		// 8-bit WAV samples are unsigned.
		for i, v := range pcm.Data {
			flat[i] = float32(v-128) / 128
		}
	case 16:
		for i, v := range pcm.Data {
			flat[i] = FromInt16(int16(v))
		}
	case 24, 32:
		scale := float32(int64(1) << (bitDepth - 1))
		for i, v := range pcm.Data {
			flat[i] = float32(v) / scale
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	return flat, nil
}

func decodeMP3(data []byte) (*sample.Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	flat := make([]float32, len(raw)/2)
	for i := range flat {
		flat[i] = FromInt16(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return sample.Deinterleave(flat, 2, d.SampleRate()), nil
}
