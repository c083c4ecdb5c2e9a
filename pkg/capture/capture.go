// Package capture records painted frames into a video blob.
package capture

import (
	"errors"
	"fmt"
	"image"
	"io"
)

// ErrCapture reports a drawing-surface or recording failure.
var ErrCapture = errors.New("capture failure")

// ErrNotCapturing is returned when frames are written to a session that is
// not running, typically because its stop timer already fired.
var ErrNotCapturing = errors.New("session is not capturing")

// State of a capture session.
type State int

const (
	Idle State = iota
	Capturing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings describe the stream a recorder produces.
type Settings struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int  // video bits per second
	Audio   bool // an Ogg/Opus track is written to AudioWriter
}

// Validate checks the stream settings.
func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("frame size %dx%d must be even", s.Width, s.Height)
	}
	if s.FPS <= 0 || s.FPS > 240 {
		return fmt.Errorf("fps %d outside 1-240", s.FPS)
	}
	if s.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", s.Bitrate)
	}
	return nil
}

// Recorder encodes frames (and optionally an audio track) into container
// chunks. Chunks are handed to emit in stream order, possibly from another
// goroutine. Stop returns once every chunk has been emitted.
type Recorder interface {
	Start(s Settings, emit func([]byte)) error
	WriteFrame(img *image.RGBA) error
	AudioWriter() io.Writer
	Stop() error
}

// NewRecorderFunc creates a fresh recorder for one session.
type NewRecorderFunc func() Recorder
