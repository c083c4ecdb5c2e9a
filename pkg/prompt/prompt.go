// Package prompt derives every generation parameter from the prompt text.
package prompt

import (
	"image/color"
	"unicode/utf16"

	"github.com/lucasb-eyer/go-colorful"
)

// Hues is the ordered set of palette hues, in degrees.
var Hues = [6]float64{190, 195, 200, 205, 210, 215}

// Suffixes used to derive independent-looking sub-parameters from one prompt.
const (
	DetuneSuffix = "detune"
	LFOSuffix    = "lfo"
)

// HSL is a palette color. S and L are percentages.
type HSL struct {
	H float64
	S float64
	L float64
}

// Color converts the palette entry to RGB.
func (c HSL) Color() color.Color {
	return colorful.Hsl(c.H, c.S/100, c.L/100).Clamped()
}

// Params holds the audio and visual parameters derived from a prompt.
type Params struct {
	BaseFrequency float64 // Hz, in [110,330)
	Detune        int     // cents, in [-100,100)
	LFORate       float64 // Hz, in [0.1,0.4)
	Palette       HSL
}

// Hash folds the UTF-16 code units of s into a 32-bit signed accumulator
// (acc = acc*31 + unit, two's-complement wrap) and returns its magnitude.
func Hash(s string) uint32 {
	var acc int32
	for _, unit := range utf16.Encode([]rune(s)) {
		acc = (acc << 5) - acc + int32(unit)
	}
	if acc < 0 {
		// -MinInt32 overflows int32 but not uint32.
		return uint32(-int64(acc))
	}
	return uint32(acc)
}

// Map derives the parameter set for a prompt. It is a pure function.
func Map(p string) Params {
	h := Hash(p)
	return Params{
		BaseFrequency: 110 + float64(h%220),
		Detune:        int(Hash(p+DetuneSuffix)%200) - 100,
		LFORate:       0.1 + float64(Hash(p+LFOSuffix)%30)/100,
		Palette: HSL{
			H: Hues[h%6],
			S: 80 + float64(h%20),
			L: 45 + float64(h%10),
		},
	}
}
