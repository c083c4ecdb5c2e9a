package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog"
)

// Painter draws one frame for a given elapsed time.
type Painter interface {
	Paint(surface *image.RGBA, prompt string, palette color.Color, elapsed float64)
}

// Animation is what a frame loop paints and for how long.
type Animation struct {
	Painter Painter
	Prompt  string
	Palette color.Color
	Seconds float64
}

// Driver runs frame loops against fresh capture sessions.
type Driver struct {
	newRecorder NewRecorderFunc
	clock       Clock
	log         zerolog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// NewDriver creates a driver that records through recorders built by
// newRecorder.
func NewDriver(newRecorder NewRecorderFunc, log zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{
		newRecorder: newRecorder,
		clock:       RealClock{},
		log:         log.With().Str("component", "capture").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Clock returns the driver's clock.
func (d *Driver) Clock() Clock { return d.clock }

// NewSession creates an idle session with a fresh recorder.
func (d *Driver) NewSession() *Session {
	return NewSession(d.newRecorder(), d.log)
}

// Record captures a silent animation and returns the assembled blob.
func (d *Driver) Record(ctx context.Context, a Animation, s Settings) ([]byte, error) {
	sess := d.NewSession()
	if err := sess.Start(s); err != nil {
		return nil, err
	}
	if _, err := d.Animate(ctx, sess, a); err != nil {
		if _, stopErr := sess.Stop(); stopErr != nil {
			d.log.Debug().Err(stopErr).Msg("Discarding capture after failure")
		}
		return nil, err
	}
	return sess.Stop()
}

// Animate paints and records one frame per tick until the elapsed time since
// the first tick reaches a.Seconds, or until the session is stopped from
// elsewhere. It returns the number of frames recorded.
func (d *Driver) Animate(ctx context.Context, sess *Session, a Animation) (int, error) {
	settings := sess.Settings()
	if settings.FPS <= 0 {
		return 0, fmt.Errorf("%w: session %s is not capturing", ErrCapture, sess.ID())
	}
	if a.Painter == nil {
		return 0, fmt.Errorf("%w: no painter", ErrCapture)
	}
	surface := image.NewRGBA(image.Rect(0, 0, settings.Width, settings.Height))

	ticker := d.clock.NewTicker(time.Second / time.Duration(settings.FPS))
	defer ticker.Stop()

	var (
		start  time.Time
		frames int
	)
	for {
		var tick time.Time
		select {
		case <-ctx.Done():
			return frames, fmt.Errorf("%w: %w", ErrCapture, ctx.Err())
		case tick = <-ticker.C():
		}
		if frames == 0 {
			start = tick
		}
		elapsed := tick.Sub(start).Seconds()

		a.Painter.Paint(surface, a.Prompt, a.Palette, elapsed)
		if err := sess.WriteFrame(surface); err != nil {
			if errors.Is(err, ErrNotCapturing) {
				d.log.Debug().Int("frames", frames).Msg("Session stopped, ending frame loop")
				return frames, nil
			}
			return frames, err
		}
		frames++

		if elapsed >= a.Seconds {
			d.log.Debug().
				Int("frames", frames).
				Float64("elapsed", elapsed).
				Msg("Animation reached target duration")
			return frames, nil
		}
	}
}
