package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
)

// StubRecorder is an in-memory Recorder. It emits a header chunk on Start,
// one chunk per frame and a trailer on Stop, with an empty chunk in between
// every frame the way real muxers sometimes flush.
type StubRecorder struct {
	mu       sync.Mutex
	settings Settings
	emit     func([]byte)
	frames   int
	audio    bytes.Buffer
	started  bool
	stopped  bool
}

// NewStubRecorder returns a recorder that needs no encoder.
func NewStubRecorder() *StubRecorder {
	return &StubRecorder{}
}

func (r *StubRecorder) Start(s Settings, emit func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("stub recorder already started")
	}
	r.started = true
	r.settings = s
	r.emit = emit
	emit([]byte(fmt.Sprintf("STUB %dx%d@%d\n", s.Width, s.Height, s.FPS)))
	return nil
}

func (r *StubRecorder) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return errors.New("stub recorder not running")
	}
	if b := img.Bounds(); b.Dx() != r.settings.Width || b.Dy() != r.settings.Height {
		return fmt.Errorf("frame is %dx%d, want %dx%d", b.Dx(), b.Dy(), r.settings.Width, r.settings.Height)
	}
	r.frames++
	r.emit(nil)
	r.emit([]byte(fmt.Sprintf("frame %d\n", r.frames)))
	return nil
}

func (r *StubRecorder) AudioWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.audio.Write(p)
	})
}

func (r *StubRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return errors.New("stub recorder already stopped")
	}
	r.stopped = true
	r.emit([]byte(fmt.Sprintf("END frames=%d audio=%d\n", r.frames, r.audio.Len())))
	return nil
}

// FrameCount returns the number of frames written.
func (r *StubRecorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// AudioBytes returns a copy of everything written to the audio track.
func (r *StubRecorder) AudioBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.audio.Bytes()...)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
