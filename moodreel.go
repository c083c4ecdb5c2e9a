// Package moodreel generates a short ambient soundtrack and an animated
// video from a text prompt. The package-level functions share one default
// Generator; use pkg/reel directly for custom configuration.
package moodreel

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hiway/moodreel/pkg/reel"
)

// Audio is a generated soundtrack.
type Audio = reel.Audio

// Error kinds, for use with errors.Is.
var (
	ErrRender       = reel.ErrRender
	ErrCapture      = reel.ErrCapture
	ErrDecode       = reel.ErrDecode
	ErrPrecondition = reel.ErrPrecondition
	ErrFull         = reel.ErrFull
)

// MaxFilenameLength bounds the prompt-derived part of a file name.
const MaxFilenameLength = 64

var (
	gen    *reel.Generator
	once   sync.Once
	genErr error
)

// Initialize sets up the default generator. It is called lazily by the
// other functions; calling it at startup surfaces configuration errors early.
func Initialize() error {
	_, err := defaultGenerator()
	return err
}

func defaultGenerator() (*reel.Generator, error) {
	once.Do(func() {
		gen, genErr = reel.New(nil, zerolog.Nop())
	})
	return gen, genErr
}

// GenerateAudio renders the ambient WAV track for prompt.
func GenerateAudio(ctx context.Context, prompt string, seconds float64) (Audio, error) {
	g, err := defaultGenerator()
	if err != nil {
		return Audio{}, err
	}
	return g.GenerateAudio(ctx, prompt, seconds)
}

// GenerateVideo records a silent WebM animation for prompt.
func GenerateVideo(ctx context.Context, prompt string, seconds float64, fps int) ([]byte, error) {
	g, err := defaultGenerator()
	if err != nil {
		return nil, err
	}
	return g.GenerateVideo(ctx, prompt, seconds, fps)
}

// MergeAudioVideo records the animation for prompt with audio as its
// soundtrack.
func MergeAudioVideo(ctx context.Context, prompt string, audio []byte, fps int) ([]byte, error) {
	g, err := defaultGenerator()
	if err != nil {
		return nil, err
	}
	return g.MergeAudioVideo(ctx, prompt, audio, fps)
}

// Filename derives a stable, shell-safe file name from a prompt:
// accents are folded to ASCII, runs of anything but letters and digits
// become one underscore, and the result is lowercased and truncated.
// An empty result falls back to "reel".
func Filename(prompt, ext string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, prompt)
	if err != nil {
		folded = prompt
	}

	var b strings.Builder
	lastWasUnderscore := true // no leading underscore
	for _, r := range strings.ToLower(folded) {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastWasUnderscore = false
			continue
		}
		if !lastWasUnderscore {
			b.WriteByte('_')
			lastWasUnderscore = true
		}
	}

	name := b.String()
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	name = strings.Trim(name, "_")
	if name == "" {
		name = "reel"
	}
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return name
}
