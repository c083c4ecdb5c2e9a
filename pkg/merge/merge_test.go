package merge

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/capture"
	"github.com/hiway/moodreel/pkg/sample"
	"github.com/hiway/moodreel/pkg/wave"
)

var testSettings = capture.Settings{Width: 32, Height: 18, FPS: 30, Bitrate: 100000}

type nopPainter struct{}

func (nopPainter) Paint(*image.RGBA, string, color.Color, float64) {}

// fakeSink writes a marker into the audio track when started.
type fakeSink struct {
	mu       sync.Mutex
	started  *sample.Buffer
	canceled bool
}

func (s *fakeSink) Start(buf *sample.Buffer, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = buf
	_, err := w.Write([]byte("OggS"))
	return err
}

func (s *fakeSink) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
}

func (s *fakeSink) Wait() error { return nil }

type harness struct {
	clock    *capture.ManualClock
	driver   *Driver
	sink     *fakeSink
	recs     []*capture.StubRecorder
	recsMu   sync.Mutex
	sessions int
}

func newHarness() *harness {
	h := &harness{clock: capture.NewManualClock(time.Unix(0, 0)), sink: &fakeSink{}}
	cd := capture.NewDriver(func() capture.Recorder {
		h.recsMu.Lock()
		defer h.recsMu.Unlock()
		rec := capture.NewStubRecorder()
		h.recs = append(h.recs, rec)
		return rec
	}, zerolog.Nop(), capture.WithClock(h.clock))
	h.driver = NewDriver(cd, func() AudioSink { return h.sink }, DefaultLead, DefaultMargin, zerolog.Nop())
	return h
}

func (h *harness) recorders() int {
	h.recsMu.Lock()
	defer h.recsMu.Unlock()
	return len(h.recs)
}

func silentWAV(seconds float64) []byte {
	return wave.Encode(sample.New(2, int(seconds*44100), 44100))
}

func TestMerge_NoAudio(t *testing.T) {
	for _, blob := range [][]byte{nil, {}} {
		h := newHarness()
		_, err := h.driver.Merge(context.Background(), Request{Painter: nopPainter{}, Audio: blob, Settings: testSettings})
		if !errors.Is(err, ErrNoAudio) {
			t.Errorf("Merge(%v) error = %v, want ErrNoAudio", blob, err)
		}
		if n := h.recorders(); n != 0 {
			t.Errorf("Merge without audio created %d capture sessions, want 0", n)
		}
	}
}

func TestMerge_DecodeFailure(t *testing.T) {
	h := newHarness()
	_, err := h.driver.Merge(context.Background(), Request{
		Painter:  nopPainter{},
		Audio:    []byte("this is not a wav file"),
		Settings: testSettings,
	})
	if !errors.Is(err, wave.ErrDecode) {
		t.Errorf("Merge() error = %v, want ErrDecode", err)
	}
	if n := h.recorders(); n != 0 {
		t.Errorf("failed decode created %d capture sessions, want 0", n)
	}
}

func TestMerge_StopTimer(t *testing.T) {
	h := newHarness()
	if got := h.driver.StopAfter(3 * time.Second); got != 3150*time.Millisecond {
		t.Errorf("StopAfter(3s) = %v, want 3.15s", got)
	}

	type result struct {
		blob []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		blob, err := h.driver.Merge(context.Background(), Request{
			Painter:  nopPainter{},
			Prompt:   "test",
			Palette:  color.White,
			Audio:    silentWAV(3),
			Settings: testSettings,
		})
		done <- result{blob, err}
	}()

	<-h.clock.TickerCreated()
	delays := h.clock.TimerDelays()
	if len(delays) != 2 {
		t.Fatalf("scheduled %d timers, want 2 (audio start, stop)", len(delays))
	}
	if delays[0] != 50*time.Millisecond {
		t.Errorf("audio start delay = %v, want 50ms", delays[0])
	}
	if delays[1] != 3150*time.Millisecond {
		t.Errorf("stop delay = %v, want 3.15s", delays[1])
	}

	// Just short of the stop timer the session is still open.
	h.clock.Advance(3149 * time.Millisecond)
	select {
	case res := <-done:
		t.Fatalf("Merge() returned before the stop timer: %v", res.err)
	default:
	}
	h.clock.Advance(time.Millisecond)
	res := <-done
	if res.err != nil {
		t.Fatalf("Merge() error = %v", res.err)
	}
	if got, want := h.clock.Now(), time.Unix(0, 0).Add(3150*time.Millisecond); !got.Equal(want) {
		t.Errorf("clock stopped at %v, want %v", got, want)
	}

	if h.recorders() != 1 {
		t.Fatalf("created %d sessions, want 1", h.recorders())
	}
	rec := h.recs[0]
	if !bytes.Equal(rec.AudioBytes(), []byte("OggS")) {
		t.Errorf("audio track = %q, want the sink output", rec.AudioBytes())
	}
	h.sink.mu.Lock()
	started, canceled := h.sink.started, h.sink.canceled
	h.sink.mu.Unlock()
	if started == nil || started.Frames() != 3*44100 {
		t.Errorf("sink did not receive the decoded 3s buffer")
	}
	if !canceled {
		t.Error("sink not canceled at stop")
	}
	// Frames stop being scheduled once 3s have elapsed.
	if n := rec.FrameCount(); n < 90 || n > 93 {
		t.Errorf("recorded %d frames, want about 91", n)
	}
	if !bytes.HasPrefix(res.blob, []byte("STUB 32x18@30\n")) {
		t.Errorf("blob = %q...", res.blob[:min(20, len(res.blob))])
	}
}

func TestMerge_ContextCanceled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.driver.Merge(ctx, Request{Painter: nopPainter{}, Audio: silentWAV(1), Settings: testSettings})
	if !errors.Is(err, capture.ErrCapture) {
		t.Errorf("Merge() error = %v, want ErrCapture", err)
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.started != nil {
		t.Error("sink started after cancellation")
	}
}
