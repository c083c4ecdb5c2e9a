package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testSettings = Settings{Width: 64, Height: 36, FPS: 30, Bitrate: 1000000}

type recordingPainter struct {
	mu      sync.Mutex
	elapsed []float64
}

func (p *recordingPainter) Paint(surface *image.RGBA, _ string, _ color.Color, elapsed float64) {
	p.mu.Lock()
	p.elapsed = append(p.elapsed, elapsed)
	p.mu.Unlock()
	surface.Pix[0] = byte(len(p.elapsed))
}

func (p *recordingPainter) calls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.elapsed...)
}

func TestChunkBuffer(t *testing.T) {
	var c ChunkBuffer
	src := []byte("one")
	c.Append(src)
	c.Append(nil)
	c.Append([]byte{})
	c.Append([]byte("two"))
	src[0] = 'X'

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.Size() != len(c.Assemble()) {
		t.Errorf("Size() = %d, want the assembled length %d", c.Size(), len(c.Assemble()))
	}
	if c.Size() != 6 {
		t.Errorf("Size() = %d, want 6", c.Size())
	}
	if got := string(c.Assemble()); got != "onetwo" {
		t.Errorf("Assemble() = %q, want %q", got, "onetwo")
	}
}

func TestSession_Lifecycle(t *testing.T) {
	rec := NewStubRecorder()
	s := NewSession(rec, zerolog.Nop())
	if s.State() != Idle {
		t.Fatalf("initial State() = %v, want idle", s.State())
	}
	if s.ID() == "" {
		t.Error("ID() is empty")
	}
	if _, err := s.Stop(); !errors.Is(err, ErrCapture) {
		t.Errorf("Stop() on idle session error = %v, want ErrCapture", err)
	}

	if err := s.Start(testSettings); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != Capturing {
		t.Errorf("State() = %v, want capturing", s.State())
	}
	if err := s.Start(testSettings); !errors.Is(err, ErrCapture) {
		t.Errorf("second Start() error = %v, want ErrCapture", err)
	}

	surface := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := 0; i < 3; i++ {
		if err := s.WriteFrame(surface); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	blob, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	want := "STUB 64x36@30\nframe 1\nframe 2\nframe 3\nEND frames=3 audio=0\n"
	if string(blob) != want {
		t.Errorf("blob = %q, want %q", blob, want)
	}

	if err := s.WriteFrame(surface); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("WriteFrame() after Stop error = %v, want ErrNotCapturing", err)
	}
	if err := s.Start(testSettings); !errors.Is(err, ErrCapture) {
		t.Errorf("Start() after Stop error = %v, want ErrCapture", err)
	}
}

func TestSession_InvalidSettings(t *testing.T) {
	tests := []Settings{
		{Width: 0, Height: 36, FPS: 30, Bitrate: 1},
		{Width: 63, Height: 36, FPS: 30, Bitrate: 1},
		{Width: 64, Height: 36, FPS: 0, Bitrate: 1},
		{Width: 64, Height: 36, FPS: 30, Bitrate: 0},
	}
	for _, s := range tests {
		sess := NewSession(NewStubRecorder(), zerolog.Nop())
		if err := sess.Start(s); !errors.Is(err, ErrCapture) {
			t.Errorf("Start(%+v) error = %v, want ErrCapture", s, err)
		}
		if sess.State() != Stopped {
			t.Errorf("State() after failed Start = %v, want stopped", sess.State())
		}
	}
}

func TestDriver_FrameCount(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var rec *StubRecorder
	d := NewDriver(func() Recorder {
		rec = NewStubRecorder()
		return rec
	}, zerolog.Nop(), WithClock(clock))

	painter := &recordingPainter{}
	type result struct {
		blob []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		blob, err := d.Record(context.Background(), Animation{
			Painter: painter,
			Prompt:  "test",
			Palette: color.White,
			Seconds: 1,
		}, testSettings)
		done <- result{blob, err}
	}()

	<-clock.TickerCreated()
	clock.Advance(2 * time.Second)
	res := <-done
	if res.err != nil {
		t.Fatalf("Record() error = %v", res.err)
	}

	calls := painter.calls()
	// One second at 30 fps, first frame at elapsed 0.
	if n := len(calls); n < 30 || n > 32 {
		t.Errorf("painted %d frames, want 31 +/- 1", n)
	}
	if calls[0] != 0 {
		t.Errorf("first frame elapsed = %v, want 0", calls[0])
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] <= calls[i-1] {
			t.Fatalf("elapsed not increasing at frame %d: %v", i, calls)
		}
	}
	if last := calls[len(calls)-1]; last < 1 || last > 1+1.0/30 {
		t.Errorf("last frame elapsed = %v, want within one frame of 1s", last)
	}
	if rec.FrameCount() != len(calls) {
		t.Errorf("recorded %d frames, painted %d", rec.FrameCount(), len(calls))
	}
	if !bytes.HasPrefix(res.blob, []byte("STUB 64x36@30\n")) || !bytes.HasSuffix(res.blob, []byte("\n")) {
		t.Errorf("unexpected blob %q", res.blob)
	}
	if strings.Count(string(res.blob), "frame ") != len(calls) {
		t.Errorf("blob holds %d frame chunks, want %d", strings.Count(string(res.blob), "frame "), len(calls))
	}
}

func TestDriver_StopsWhenSessionStops(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	d := NewDriver(func() Recorder { return NewStubRecorder() }, zerolog.Nop(), WithClock(clock))

	sess := d.NewSession()
	if err := sess.Start(testSettings); err != nil {
		t.Fatal(err)
	}
	clock.AfterFunc(500*time.Millisecond, func() {
		if _, err := sess.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})

	painter := &recordingPainter{}
	done := make(chan error, 1)
	var frames int
	go func() {
		var err error
		frames, err = d.Animate(context.Background(), sess, Animation{Painter: painter, Seconds: 10})
		done <- err
	}()

	<-clock.TickerCreated()
	clock.Advance(time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Animate() error = %v", err)
	}
	if frames >= 20 || frames < 10 {
		t.Errorf("Animate() recorded %d frames, want about 15", frames)
	}
	if sess.State() != Stopped {
		t.Errorf("State() = %v, want stopped", sess.State())
	}
}

func TestDriver_ContextCanceled(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	d := NewDriver(func() Recorder { return NewStubRecorder() }, zerolog.Nop(), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Record(ctx, Animation{Painter: &recordingPainter{}, Seconds: 1}, testSettings)
	if !errors.Is(err, ErrCapture) || !errors.Is(err, context.Canceled) {
		t.Errorf("Record() error = %v, want ErrCapture wrapping context.Canceled", err)
	}
}

type failingRecorder struct{ StubRecorder }

func (f *failingRecorder) Start(Settings, func([]byte)) error {
	return errors.New("encoder missing")
}

func TestDriver_RecorderStartFailure(t *testing.T) {
	d := NewDriver(func() Recorder { return &failingRecorder{} }, zerolog.Nop())
	_, err := d.Record(context.Background(), Animation{Painter: &recordingPainter{}, Seconds: 1}, testSettings)
	if !errors.Is(err, ErrCapture) {
		t.Errorf("Record() error = %v, want ErrCapture", err)
	}
}

func TestDriver_FreshRecorderPerSession(t *testing.T) {
	var made int
	d := NewDriver(func() Recorder {
		made++
		return NewStubRecorder()
	}, zerolog.Nop())
	a, b := d.NewSession(), d.NewSession()
	if made != 2 {
		t.Errorf("recorders created = %d, want 2", made)
	}
	if a.ID() == b.ID() {
		t.Error("sessions share an ID")
	}
}

// mutedRecorder accepts frames but never emits a chunk.
type mutedRecorder struct{ StubRecorder }

func (m *mutedRecorder) Start(s Settings, _ func([]byte)) error {
	return m.StubRecorder.Start(s, func([]byte) {})
}

func TestSession_StopWithoutData(t *testing.T) {
	sess := NewSession(&mutedRecorder{}, zerolog.Nop())
	if err := sess.Start(testSettings); err != nil {
		t.Fatal(err)
	}
	blob, err := sess.Stop()
	if !errors.Is(err, ErrCapture) {
		t.Errorf("Stop() error = %v, want ErrCapture", err)
	}
	if blob != nil {
		t.Errorf("Stop() blob = %q, want nil", blob)
	}
}
