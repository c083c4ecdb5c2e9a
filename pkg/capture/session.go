package capture

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is one recording: Idle until Start, Capturing until Stop, then
// Stopped for good. A session is never reused.
type Session struct {
	id     string
	rec    Recorder
	chunks ChunkBuffer
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	settings Settings
	frames   int
}

// NewSession wraps a recorder in a new idle session.
func NewSession(rec Recorder, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:  id,
		rec: rec,
		log: log.With().Str("session_id", id).Logger(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settings returns the settings the session was started with.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Frames returns how many frames were recorded.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Start begins recording.
func (s *Session) Start(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("%w: cannot start a %s session", ErrCapture, s.state)
	}
	if err := settings.Validate(); err != nil {
		s.state = Stopped
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if err := s.rec.Start(settings, s.chunks.Append); err != nil {
		s.state = Stopped
		return fmt.Errorf("%w: failed to start recorder: %v", ErrCapture, err)
	}
	s.state = Capturing
	s.settings = settings
	s.log.Debug().
		Int("width", settings.Width).
		Int("height", settings.Height).
		Int("fps", settings.FPS).
		Bool("audio", settings.Audio).
		Msg("Capture started")
	return nil
}

// WriteFrame records the current surface. It returns ErrNotCapturing once
// the session has stopped.
func (s *Session) WriteFrame(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Capturing {
		return ErrNotCapturing
	}
	if err := s.rec.WriteFrame(img); err != nil {
		return fmt.Errorf("%w: failed to write frame %d: %v", ErrCapture, s.frames, err)
	}
	s.frames++
	s.log.Trace().Int("frame", s.frames).Msg("Frame captured")
	return nil
}

// AudioWriter returns the sink for the encoded audio track.
func (s *Session) AudioWriter() io.Writer {
	return s.rec.AudioWriter()
}

// Stop finishes the recording and assembles the blob from every non-empty
// chunk in emission order.
func (s *Session) Stop() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Capturing {
		return nil, fmt.Errorf("%w: cannot stop a %s session", ErrCapture, s.state)
	}
	s.state = Stopped
	if err := s.rec.Stop(); err != nil {
		return nil, fmt.Errorf("%w: recorder failed: %v", ErrCapture, err)
	}

	size := s.chunks.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: recorder produced no data", ErrCapture)
	}
	s.log.Debug().
		Int("frames", s.frames).
		Int("chunks", s.chunks.Len()).
		Int("bytes", size).
		Msg("Capture stopped")
	return s.chunks.Assemble(), nil
}
