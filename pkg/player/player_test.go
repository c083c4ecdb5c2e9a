package player

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/sample"
)

func TestEncode(t *testing.T) {
	mono := &sample.Buffer{SampleRate: SampleRate, Channels: [][]float32{{0.5, -0.25}}}
	out, err := Encode(mono)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(out) != 2*ChannelCount*BytesPerSample {
		t.Fatalf("len = %d, want %d", len(out), 2*ChannelCount*BytesPerSample)
	}
	want := []float32{0.5, 0.5, -0.25, -0.25}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		if got != w {
			t.Errorf("sample %d = %v, want %v", i, got, w)
		}
	}
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		buf  *sample.Buffer
	}{
		{"nil", nil},
		{"no channels", &sample.Buffer{SampleRate: SampleRate}},
	}
	for _, tt := range tests {
		if _, err := Encode(tt.buf); err == nil {
			t.Errorf("%s: Encode() error = nil, want error", tt.name)
		}
	}
}

func TestStubPlayer(t *testing.T) {
	p := NewStubPlayer(zerolog.Nop())
	if err := p.Play(sample.New(2, SampleRate/2, SampleRate)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	played := p.Played()
	if len(played) != 1 || played[0] != 500*time.Millisecond {
		t.Errorf("Played() = %v, want [500ms]", played)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStubPlayer_ResamplesToDeviceRate(t *testing.T) {
	p := NewStubPlayer(zerolog.Nop())
	buf := sample.New(2, 48000, 48000)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/48000))
	}
	if err := p.Play(buf); err != nil {
		t.Fatalf("Play() of a 48 kHz buffer error = %v", err)
	}
	played := p.Played()
	if len(played) != 1 {
		t.Fatalf("Played() = %v, want one entry", played)
	}
	if d := played[0]; d < 990*time.Millisecond || d > 1010*time.Millisecond {
		t.Errorf("played %v at %d Hz, want about 1s", d, SampleRate)
	}
}

func TestEncode_Resamples(t *testing.T) {
	out, err := Encode(sample.New(1, 22050, 22050))
	if err != nil {
		t.Fatalf("Encode() of a 22.05 kHz buffer error = %v", err)
	}
	frames := len(out) / (ChannelCount * BytesPerSample)
	if frames < SampleRate-100 || frames > SampleRate+100 {
		t.Errorf("Encode() = %d device frames, want about %d", frames, SampleRate)
	}
}
