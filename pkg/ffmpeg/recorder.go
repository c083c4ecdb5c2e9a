// Package ffmpeg records raw frames to WebM through an ffmpeg subprocess.
package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/capture"
)

// DefaultPath is looked up on PATH when no binary is configured.
const DefaultPath = "ffmpeg"

// ChunkSize is the read size for encoder output; every read becomes a chunk.
const ChunkSize = 4096

// Available reports whether the ffmpeg binary can be found.
func Available(path string) bool {
	if path == "" {
		path = DefaultPath
	}
	_, err := exec.LookPath(path)
	return err == nil
}

// Recorder encodes RGBA frames to VP9 in a WebM container. When the session
// carries audio, an Ogg/Opus stream written to AudioWriter is muxed in
// unchanged. A Recorder runs one encode and is then spent.
type Recorder struct {
	path string
	log  zerolog.Logger

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	audio    *os.File
	stderr   lockedBuffer
	done     chan error
	settings capture.Settings
	row      []byte
}

// NewRecorder creates a recorder that runs the binary at path.
func NewRecorder(path string, log zerolog.Logger) *Recorder {
	if path == "" {
		path = DefaultPath
	}
	return &Recorder{
		path: path,
		log:  log.With().Str("component", "ffmpeg").Logger(),
	}
}

// Args returns the ffmpeg command line for s.
func Args(s capture.Settings) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-r", strconv.Itoa(s.FPS),
		"-i", "pipe:0",
	}
	if s.Audio {
		args = append(args, "-f", "ogg", "-i", "pipe:3")
	}
	args = append(args,
		"-map", "0:v",
		"-c:v", "libvpx-vp9",
		"-b:v", strconv.Itoa(s.Bitrate),
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
	)
	if s.Audio {
		args = append(args, "-map", "1:a", "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	return append(args, "-f", "webm", "pipe:1")
}

func (r *Recorder) Start(s capture.Settings, emit func([]byte)) error {
	if r.cmd != nil {
		return errors.New("ffmpeg recorder already started")
	}
	r.settings = s
	r.cmd = exec.Command(r.path, Args(s)...)
	r.cmd.Stderr = &r.stderr

	stdin, err := r.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}

	var audioRead *os.File
	if s.Audio {
		audioRead, r.audio, err = os.Pipe()
		if err != nil {
			return fmt.Errorf("audio pipe error: %w", err)
		}
		// Child fd 3.
		r.cmd.ExtraFiles = []*os.File{audioRead}
	}

	r.log.Debug().Strs("args", r.cmd.Args).Msg("Starting ffmpeg")
	if err := r.cmd.Start(); err != nil {
		if audioRead != nil {
			audioRead.Close()
			r.audio.Close()
		}
		return fmt.Errorf("ffmpeg start error: %w", err)
	}
	if audioRead != nil {
		audioRead.Close()
	}
	r.stdin = stdin

	r.done = make(chan error, 1)
	go r.pump(stdout, emit)
	return nil
}

// pump forwards encoder output as chunks until EOF.
func (r *Recorder) pump(stdout io.Reader, emit func([]byte)) {
	buf := make([]byte, ChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			emit(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			r.done <- err
			return
		}
	}
}

func (r *Recorder) WriteFrame(img *image.RGBA) error {
	if r.stdin == nil {
		return errors.New("ffmpeg recorder not started")
	}
	b := img.Bounds()
	if b.Dx() != r.settings.Width || b.Dy() != r.settings.Height {
		return fmt.Errorf("frame is %dx%d, want %dx%d", b.Dx(), b.Dy(), r.settings.Width, r.settings.Height)
	}

	rowBytes := b.Dx() * 4
	if img.Stride == rowBytes && b.Min == (image.Point{}) {
		_, err := r.stdin.Write(img.Pix[:rowBytes*b.Dy()])
		return err
	}
	// Sub-image: copy row by row.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := r.stdin.Write(img.Pix[off : off+rowBytes]); err != nil {
			return err
		}
	}
	return nil
}

// AudioWriter returns the Ogg input of the encoder, or io.Discard for a
// silent recording.
func (r *Recorder) AudioWriter() io.Writer {
	if r.audio == nil {
		return io.Discard
	}
	return r.audio
}

// Stop closes the inputs, drains the output and waits for ffmpeg to exit.
func (r *Recorder) Stop() error {
	if r.cmd == nil || r.stdin == nil {
		return errors.New("ffmpeg recorder not started")
	}
	var errs []error
	if err := r.stdin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close video input: %w", err))
	}
	if r.audio != nil {
		if err := r.audio.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audio input: %w", err))
		}
	}
	if err := <-r.done; err != nil {
		errs = append(errs, fmt.Errorf("ffmpeg read error: %w", err))
	}
	if err := r.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(r.stderr.String())
		errs = append(errs, fmt.Errorf("ffmpeg exited: %w: %s", err, msg))
	}
	r.log.Debug().Int("exit_code", r.cmd.ProcessState.ExitCode()).Msg("ffmpeg finished")
	return errors.Join(errs...)
}

// lockedBuffer collects stderr written by the exec copier goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
