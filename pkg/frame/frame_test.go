package frame

import (
	"bytes"
	"image/color"
	"strings"
	"testing"
	"unicode/utf8"
)

// monoMeasure treats every rune as 10 units wide.
func monoMeasure(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * 10
}

func TestWrap(t *testing.T) {
	const text = "A dark biomechanical lord awakens amidst thunder"
	tests := []struct {
		name     string
		maxWidth float64
		want     []string
	}{
		{"narrow", 100, []string{"A dark", "biomechanical", "lord", "awakens"}},
		{"medium", 200, []string{"A dark biomechanical", "lord awakens amidst", "thunder"}},
		{"wide", 1000, []string{text}},
	}
	for _, tt := range tests {
		got := Wrap(monoMeasure, text, tt.maxWidth, MaxTextLines)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%s: Wrap() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWrap_Bounds(t *testing.T) {
	const text = "A dark biomechanical lord awakens amidst thunder"
	for _, maxWidth := range []float64{10, 40, 60, 90, 130, 150, 250} {
		lines := Wrap(monoMeasure, text, maxWidth, MaxTextLines)
		if len(lines) > MaxTextLines {
			t.Errorf("width %v: %d lines, want at most %d", maxWidth, len(lines), MaxTextLines)
		}
		for _, line := range lines {
			if monoMeasure(line) > maxWidth && strings.Contains(line, " ") {
				t.Errorf("width %v: line %q measures %v", maxWidth, line, monoMeasure(line))
			}
		}
	}
}

func TestWrap_Empty(t *testing.T) {
	if got := Wrap(monoMeasure, "   ", 100, 4); len(got) != 0 {
		t.Errorf("Wrap(blank) = %q, want no lines", got)
	}
	if got := Wrap(monoMeasure, "hello", 100, 0); len(got) != 0 {
		t.Errorf("Wrap(maxLines=0) = %q, want no lines", got)
	}
}

func TestPainter_Deterministic(t *testing.T) {
	p, err := NewPainter(320, 180)
	if err != nil {
		t.Fatalf("NewPainter() error = %v", err)
	}
	palette := color.RGBA{R: 0x22, G: 0x88, B: 0xee, A: 0xff}

	a := p.NewSurface()
	b := p.NewSurface()
	p.Paint(a, "tide pools", palette, 1.25)
	p.Paint(b, "tide pools", palette, 1.25)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("same elapsed time painted different pixels")
	}

	c := p.NewSurface()
	p.Paint(c, "tide pools", palette, 2.5)
	if bytes.Equal(a.Pix, c.Pix) {
		t.Error("different elapsed times painted identical pixels")
	}
}

func TestPainter_Background(t *testing.T) {
	p, err := NewPainter(320, 180)
	if err != nil {
		t.Fatal(err)
	}
	s := p.NewSurface()
	p.Paint(s, "", color.White, 0)

	top := s.RGBAAt(0, 0)
	bottom := s.RGBAAt(0, 179)
	if top.R > 0x10 || top.G > 0x10 || top.B > 0x10 {
		t.Errorf("top-left = %v, want near black", top)
	}
	if bottom.B <= top.B {
		t.Errorf("bottom-left blue %d not brighter than top-left %d", bottom.B, top.B)
	}
	if top.A != 0xff {
		t.Errorf("alpha = %d, want opaque", top.A)
	}
}

func TestNewPainter_InvalidSize(t *testing.T) {
	if _, err := NewPainter(0, 720); err == nil {
		t.Error("NewPainter(0, 720) error = nil, want error")
	}
}
