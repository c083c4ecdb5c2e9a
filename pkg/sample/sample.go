package sample

import (
	"errors"
	"fmt"
	"time"
)

// Buffer is a fixed-length multi-channel block of float samples in [-1,1].
// It is produced once by a renderer or decoder and never mutated afterwards.
type Buffer struct {
	SampleRate int
	Channels   [][]float32 // one slice per channel, all the same length
}

// New allocates a silent buffer.
func New(channels, frames, sampleRate int) *Buffer {
	b := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for ch := range b.Channels {
		b.Channels[ch] = make([]float32, frames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Seconds returns the buffer length in seconds.
func (b *Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Duration returns the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Validate checks the buffer shape.
func (b *Buffer) Validate() error {
	if b == nil {
		return errors.New("sample buffer is nil")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", b.SampleRate)
	}
	if len(b.Channels) == 0 {
		return errors.New("sample buffer has no channels")
	}
	n := len(b.Channels[0])
	for ch, data := range b.Channels {
		if len(data) != n {
			return fmt.Errorf("channel %d has %d frames, want %d", ch, len(data), n)
		}
	}
	return nil
}

// Interleave returns the samples frame by frame across channels.
func (b *Buffer) Interleave() []float32 {
	nch := b.NumChannels()
	out := make([]float32, b.Frames()*nch)
	for ch, data := range b.Channels {
		for i, v := range data {
			out[i*nch+ch] = v
		}
	}
	return out
}

// Deinterleave builds a buffer from frame-interleaved samples.
// Trailing samples that do not fill a whole frame are dropped.
func Deinterleave(data []float32, channels, sampleRate int) *Buffer {
	frames := 0
	if channels > 0 {
		frames = len(data) / channels
	}
	b := New(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			b.Channels[ch][i] = data[i*channels+ch]
		}
	}
	return b
}
