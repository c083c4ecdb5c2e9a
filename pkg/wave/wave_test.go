package wave

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/hiway/moodreel/pkg/sample"
)

func TestEncode_Header(t *testing.T) {
	// 8 seconds of stereo silence at 44.1kHz
	buf := sample.New(2, 8*44100, 44100)
	out := Encode(buf)

	dataSize := 8 * 44100 * 2 * 2
	if len(out) != 44+dataSize {
		t.Fatalf("WAV size = %d, want %d", len(out), 44+dataSize)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RIFF magic", string(out[0:4]), "RIFF"},
		{"RIFF size", binary.LittleEndian.Uint32(out[4:8]), uint32(36 + dataSize)},
		{"WAVE", string(out[8:12]), "WAVE"},
		{"fmt chunk", string(out[12:16]), "fmt "},
		{"fmt size", binary.LittleEndian.Uint32(out[16:20]), uint32(16)},
		{"audio format", binary.LittleEndian.Uint16(out[20:22]), uint16(1)},
		{"channels", binary.LittleEndian.Uint16(out[22:24]), uint16(2)},
		{"sample rate", binary.LittleEndian.Uint32(out[24:28]), uint32(44100)},
		{"byte rate", binary.LittleEndian.Uint32(out[28:32]), uint32(176400)},
		{"block align", binary.LittleEndian.Uint16(out[32:34]), uint16(4)},
		{"bits per sample", binary.LittleEndian.Uint16(out[34:36]), uint16(16)},
		{"data chunk", string(out[36:40]), "data"},
		{"data size", binary.LittleEndian.Uint32(out[40:44]), uint32(dataSize)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestEncode_Interleaving(t *testing.T) {
	buf := &sample.Buffer{
		SampleRate: 8000,
		Channels: [][]float32{
			{1, 0},
			{-1, 0.5},
		},
	}
	out := Encode(buf)
	want := []int16{32767, -32768, 0, 16384}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[44+i*2:]))
		if got != w {
			t.Errorf("sample[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestEncode_Empty(t *testing.T) {
	out := Encode(sample.New(1, 0, 44100))
	if len(out) != 44 {
		t.Errorf("empty WAV size = %d, want 44", len(out))
	}
	if size := binary.LittleEndian.Uint32(out[40:44]); size != 0 {
		t.Errorf("data size = %d, want 0", size)
	}
}

func TestToInt16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},
		{-0.5, -16384},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := ToInt16(tt.in); got != tt.want {
			t.Errorf("ToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	const frames = 4410
	buf := sample.New(2, frames, 44100)
	for i := 0; i < frames; i++ {
		x := float64(i) / 44100
		buf.Channels[0][i] = float32(0.9 * math.Sin(2*math.Pi*440*x))
		buf.Channels[1][i] = float32(-0.7 * math.Cos(2*math.Pi*220*x))
	}
	buf.Channels[0][0] = 1
	buf.Channels[1][0] = -1

	got, err := Decode(Encode(buf))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.SampleRate != 44100 || got.NumChannels() != 2 || got.Frames() != frames {
		t.Fatalf("decoded shape = %d Hz / %d ch / %d frames, want 44100 / 2 / %d",
			got.SampleRate, got.NumChannels(), got.Frames(), frames)
	}

	const tolerance = 1.0 / 32767
	for ch := 0; ch < 2; ch++ {
		for i := 0; i < frames; i++ {
			diff := math.Abs(float64(got.Channels[ch][i] - buf.Channels[ch][i]))
			if diff > tolerance {
				t.Fatalf("channel %d frame %d: |%v - %v| = %v > %v",
					ch, i, got.Channels[ch][i], buf.Channels[ch][i], diff, tolerance)
			}
		}
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"garbage", []byte("definitely not audio")},
		{"truncated header", []byte("RIFF\x00\x00\x00\x00WAVE")},
		{"no frames", Encode(sample.New(2, 0, 44100))},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.data); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: Decode() error = %v, want ErrDecode", tt.name, err)
		}
	}
}

func TestDecode_24Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone24.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 48000, 24, 1, 1)
	data := []int{0, 1 << 22, -(1 << 22), (1 << 23) - 1}
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           data,
		SourceBitDepth: 24,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if buf.SampleRate != 48000 || buf.NumChannels() != 1 || buf.Frames() != len(data) {
		t.Fatalf("decoded shape = %d Hz / %d ch / %d frames", buf.SampleRate, buf.NumChannels(), buf.Frames())
	}
	want := []float32{0, 0.5, -0.5, 1}
	for i, w := range want {
		if diff := math.Abs(float64(buf.Channels[0][i] - w)); diff > 1e-6 {
			t.Errorf("frame %d = %v, want %v", i, buf.Channels[0][i], w)
		}
	}
}
