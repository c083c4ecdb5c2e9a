// Package merge records an animation together with a decoded audio track.
package merge

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/capture"
	"github.com/hiway/moodreel/pkg/sample"
	"github.com/hiway/moodreel/pkg/wave"
)

// ErrNoAudio is returned when a merge is requested without an audio blob.
var ErrNoAudio = errors.New("no audio to merge")

const (
	// DefaultLead delays audio playback after capture starts.
	DefaultLead = 50 * time.Millisecond
	// DefaultMargin keeps capturing after the audio ends to flush it.
	DefaultMargin = 100 * time.Millisecond
)

// AudioSink plays a buffer into the audio track of a capture in real time.
// Start returns immediately; Cancel asks playback to end early and Wait
// blocks until the sink has stopped writing.
type AudioSink interface {
	Start(buf *sample.Buffer, w io.Writer) error
	Cancel()
	Wait() error
}

// NewSinkFunc creates a fresh sink per merge.
type NewSinkFunc func() AudioSink

// Request is one merge job.
type Request struct {
	Painter  capture.Painter
	Prompt   string
	Palette  color.Color
	Audio    []byte
	Settings capture.Settings
}

// Driver runs merges.
type Driver struct {
	capture *capture.Driver
	newSink NewSinkFunc
	lead    time.Duration
	margin  time.Duration
	log     zerolog.Logger
}

// NewDriver creates a merge driver on top of a capture driver.
func NewDriver(cd *capture.Driver, newSink NewSinkFunc, lead, margin time.Duration, log zerolog.Logger) *Driver {
	return &Driver{
		capture: cd,
		newSink: newSink,
		lead:    lead,
		margin:  margin,
		log:     log.With().Str("component", "merge").Logger(),
	}
}

// StopAfter returns when the capture is stopped for a track of length d.
func (d *Driver) StopAfter(duration time.Duration) time.Duration {
	return duration + d.lead + d.margin
}

type outcome struct {
	blob []byte
	err  error
}

// Merge decodes req.Audio, records the animation for the decoded duration
// while the audio plays into the same stream, and returns the muxed blob.
func (d *Driver) Merge(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: generate audio before merging", ErrNoAudio)
	}
	buf, err := wave.Decode(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	duration := buf.Duration()

	settings := req.Settings
	settings.Audio = true
	sess := d.capture.NewSession()
	if err := sess.Start(settings); err != nil {
		return nil, err
	}
	log := d.log.With().Str("session_id", sess.ID()).Logger()

	sink := d.newSink()
	var (
		sinkMu  sync.Mutex
		sinkErr error
	)
	clock := d.capture.Clock()
	startTimer := clock.AfterFunc(d.lead, func() {
		log.Debug().Msg("Starting audio playback")
		if err := sink.Start(buf, sess.AudioWriter()); err != nil {
			sinkMu.Lock()
			sinkErr = err
			sinkMu.Unlock()
		}
	})

	stopAt := d.StopAfter(duration)
	done := make(chan outcome, 1)
	stopTimer := clock.AfterFunc(stopAt, func() {
		startTimer.Stop()
		sink.Cancel()
		blob, err := sess.Stop()
		if werr := sink.Wait(); werr != nil && err == nil {
			err = fmt.Errorf("%w: audio track failed: %v", capture.ErrCapture, werr)
		}
		sinkMu.Lock()
		if sinkErr != nil && err == nil {
			err = fmt.Errorf("%w: audio playback failed: %v", capture.ErrCapture, sinkErr)
		}
		sinkMu.Unlock()
		if err != nil {
			blob = nil
		}
		done <- outcome{blob, err}
	})
	log.Debug().
		Dur("duration", duration).
		Dur("stop_at", stopAt).
		Msg("Merge capture scheduled")

	abort := func(cause error) ([]byte, error) {
		if stopTimer.Stop() {
			startTimer.Stop()
			sink.Cancel()
			if _, err := sess.Stop(); err != nil {
				log.Debug().Err(err).Msg("Discarding merge capture after failure")
			}
			if err := sink.Wait(); err != nil {
				log.Debug().Err(err).Msg("Audio sink failed during abort")
			}
			return nil, cause
		}
		// The stop timer is already running; let it finish.
		<-done
		return nil, cause
	}

	frames, err := d.capture.Animate(ctx, sess, capture.Animation{
		Painter: req.Painter,
		Prompt:  req.Prompt,
		Palette: req.Palette,
		Seconds: duration.Seconds(),
	})
	if err != nil {
		return abort(err)
	}
	log.Debug().Int("frames", frames).Msg("Frame loop finished, waiting for stop timer")

	select {
	case res := <-done:
		return res.blob, res.err
	case <-ctx.Done():
		return abort(fmt.Errorf("%w: %w", capture.ErrCapture, ctx.Err()))
	}
}
