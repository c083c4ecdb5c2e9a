// Package reel turns a prompt into an ambient soundtrack, an animated video
// and their merge, one request at a time.
package reel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/capture"
	"github.com/hiway/moodreel/pkg/config"
	"github.com/hiway/moodreel/pkg/ffmpeg"
	"github.com/hiway/moodreel/pkg/frame"
	"github.com/hiway/moodreel/pkg/merge"
	"github.com/hiway/moodreel/pkg/player"
	"github.com/hiway/moodreel/pkg/prompt"
	"github.com/hiway/moodreel/pkg/queue"
	"github.com/hiway/moodreel/pkg/sample"
	"github.com/hiway/moodreel/pkg/synth"
	"github.com/hiway/moodreel/pkg/wave"
)

// Error kinds reported by the Generator.
var (
	ErrRender       = synth.ErrRender
	ErrCapture      = capture.ErrCapture
	ErrDecode       = wave.ErrDecode
	ErrPrecondition = merge.ErrNoAudio
	ErrFull         = queue.ErrFull
)

// Audio is a generated soundtrack.
type Audio struct {
	Blob     []byte // canonical PCM WAV
	Duration time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithRecorder replaces the ffmpeg recorder.
func WithRecorder(f capture.NewRecorderFunc) Option {
	return func(g *Generator) { g.newRecorder = f }
}

// WithSink replaces the Opus audio sink used when merging.
func WithSink(f merge.NewSinkFunc) Option {
	return func(g *Generator) { g.newSink = f }
}

// WithClock replaces the wall clock for frame loops and merge timers.
func WithClock(c capture.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithSource makes audio rendering use sources built by f instead of fresh
// random ones.
func WithSource(f func() synth.Source) Option {
	return func(g *Generator) { g.newSource = f }
}

// WithPlayer replaces the local audio device.
func WithPlayer(p player.Player) Option {
	return func(g *Generator) { g.player = p }
}

// Generator manages generation requests.
type Generator struct {
	cfg         *config.Config
	log         zerolog.Logger
	queue       *queue.Queue
	newRecorder capture.NewRecorderFunc
	newSink     merge.NewSinkFunc
	newSource   func() synth.Source
	clock       capture.Clock
	usesFFmpeg  bool
	capture     *capture.Driver
	merge       *merge.Driver

	playerMu sync.Mutex
	player   player.Player

	stopOnce sync.Once
}

// New creates a Generator with the given configuration.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Generator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log = log.With().Str("component", "reel").Logger()

	g := &Generator{
		cfg:   cfg,
		log:   log,
		clock: capture.RealClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.newRecorder == nil {
		g.newRecorder = g.ffmpegRecorder
		g.usesFFmpeg = true
	}
	if g.newSink == nil {
		g.newSink = func() merge.AudioSink {
			return merge.NewOpusSink(cfg.Merge.OpusBitrate, g.clock, log)
		}
	}

	q, err := queue.NewQueue("requests", cfg.Queue.MaxPending, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create request queue: %w", err)
	}
	g.queue = q
	g.capture = capture.NewDriver(g.newRecorder, log, capture.WithClock(g.clock))
	g.merge = merge.NewDriver(g.capture, g.newSink, cfg.Merge.Lead(), cfg.Merge.Margin(), log)

	return g, nil
}

// ffmpegRecorder is the default recorder factory.
func (g *Generator) ffmpegRecorder() capture.Recorder {
	return ffmpeg.NewRecorder(g.cfg.FFmpeg.Path, g.log)
}

// checkEncoder fails fast when the default recorder has no binary to run.
func (g *Generator) checkEncoder() error {
	if g.usesFFmpeg && !ffmpeg.Available(g.cfg.FFmpeg.Path) {
		return fmt.Errorf("%w: video encoder %q not found", ErrCapture, g.cfg.FFmpeg.Path)
	}
	return nil
}

// Config returns the generator's configuration.
func (g *Generator) Config() *config.Config { return g.cfg }

// submit runs fn on the request queue with a request-scoped logger.
func (g *Generator) submit(ctx context.Context, op, p string, fn func(ctx context.Context, log zerolog.Logger) error) error {
	log := g.log.With().
		Str("request_id", uuid.NewString()).
		Str("op", op).
		Logger()
	log.Debug().Str("prompt", p).Msg("Request received")

	start := time.Now()
	err := g.queue.Submit(ctx, func(ctx context.Context) error {
		return fn(ctx, log)
	})
	if err != nil {
		log.Error().Err(err).Msg("Request failed")
		return err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("Request finished")
	return nil
}

// GenerateAudio renders the ambient track for a prompt and encodes it as WAV.
// seconds <= 0 uses the configured length.
func (g *Generator) GenerateAudio(ctx context.Context, p string, seconds float64) (Audio, error) {
	var out Audio
	err := g.submit(ctx, "audio", p, func(ctx context.Context, log zerolog.Logger) error {
		buf, err := g.render(p, seconds)
		if err != nil {
			return err
		}
		out = Audio{Blob: wave.Encode(buf), Duration: buf.Duration()}
		log.Info().
			Dur("duration", out.Duration).
			Int("bytes", len(out.Blob)).
			Msg("Audio generated")
		return nil
	})
	if err != nil {
		return Audio{}, err
	}
	return out, nil
}

func (g *Generator) render(p string, seconds float64) (*sample.Buffer, error) {
	opts := synth.Options{
		Seconds:    g.cfg.Audio.Seconds,
		SampleRate: g.cfg.Audio.SampleRate,
		Channels:   g.cfg.Audio.Channels,
	}
	if seconds > 0 {
		opts.Seconds = seconds
	}
	var src synth.Source
	if g.newSource != nil {
		src = g.newSource()
	}
	return synth.Render(prompt.Map(p), opts, src)
}

// settings returns the capture settings for a request. fps <= 0 uses the
// configured rate.
func (g *Generator) settings(fps int) capture.Settings {
	s := capture.Settings{
		Width:   g.cfg.Video.Width,
		Height:  g.cfg.Video.Height,
		FPS:     g.cfg.Video.FPS,
		Bitrate: g.cfg.Video.Bitrate,
	}
	if fps > 0 {
		s.FPS = fps
	}
	return s
}

func (g *Generator) painter() (*frame.Painter, error) {
	if err := g.checkEncoder(); err != nil {
		return nil, err
	}
	p, err := frame.NewPainter(g.cfg.Video.Width, g.cfg.Video.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return p, nil
}

// GenerateVideo records a silent animation for a prompt. seconds <= 0 and
// fps <= 0 use the configured values.
func (g *Generator) GenerateVideo(ctx context.Context, p string, seconds float64, fps int) ([]byte, error) {
	if seconds <= 0 {
		seconds = g.cfg.Video.Seconds
	}
	var blob []byte
	err := g.submit(ctx, "video", p, func(ctx context.Context, log zerolog.Logger) error {
		painter, err := g.painter()
		if err != nil {
			return err
		}
		b, err := g.capture.Record(ctx, capture.Animation{
			Painter: painter,
			Prompt:  p,
			Palette: prompt.Map(p).Palette.Color(),
			Seconds: seconds,
		}, g.settings(fps))
		if err != nil {
			return err
		}
		blob = b
		log.Info().Int("bytes", len(blob)).Msg("Video generated")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// MergeAudioVideo records the animation for a prompt with audioBlob as its
// soundtrack. The video runs for the length of the audio.
func (g *Generator) MergeAudioVideo(ctx context.Context, p string, audioBlob []byte, fps int) ([]byte, error) {
	if len(audioBlob) == 0 {
		return nil, fmt.Errorf("%w: generate audio before merging", ErrPrecondition)
	}
	var blob []byte
	err := g.submit(ctx, "merge", p, func(ctx context.Context, log zerolog.Logger) error {
		painter, err := g.painter()
		if err != nil {
			return err
		}
		b, err := g.merge.Merge(ctx, merge.Request{
			Painter:  painter,
			Prompt:   p,
			Palette:  prompt.Map(p).Palette.Color(),
			Audio:    audioBlob,
			Settings: g.settings(fps),
		})
		if err != nil {
			return err
		}
		blob = b
		log.Info().Int("bytes", len(blob)).Msg("Merged video generated")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Play renders the ambient track for a prompt and plays it on the local
// audio device, blocking until playback ends.
func (g *Generator) Play(ctx context.Context, p string, seconds float64) error {
	return g.submit(ctx, "play", p, func(ctx context.Context, log zerolog.Logger) error {
		buf, err := g.render(p, seconds)
		if err != nil {
			return err
		}
		pl, err := g.audioPlayer()
		if err != nil {
			return err
		}
		return pl.Play(buf)
	})
}

// PlayBlob decodes a WAV or MP3 blob and plays it.
func (g *Generator) PlayBlob(ctx context.Context, blob []byte) error {
	return g.submit(ctx, "play", "", func(ctx context.Context, log zerolog.Logger) error {
		buf, err := wave.Decode(blob)
		if err != nil {
			return err
		}
		pl, err := g.audioPlayer()
		if err != nil {
			return err
		}
		return pl.Play(buf)
	})
}

func (g *Generator) audioPlayer() (player.Player, error) {
	g.playerMu.Lock()
	defer g.playerMu.Unlock()
	if g.player == nil {
		p, err := player.NewOtoPlayer(g.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio player: %w", err)
		}
		g.player = p
	}
	return g.player, nil
}

// Close stops the request queue. Requests still waiting fail with
// queue.ErrStopped.
func (g *Generator) Close() error {
	var err error
	g.stopOnce.Do(func() {
		g.log.Debug().Msg("Stopping generator")
		g.queue.Stop()

		g.playerMu.Lock()
		defer g.playerMu.Unlock()
		if g.player != nil {
			err = g.player.Close()
		}
	})
	return err
}
