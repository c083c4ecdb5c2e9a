package merge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"gopkg.in/hraban/opus.v2"

	"github.com/hiway/moodreel/pkg/capture"
	"github.com/hiway/moodreel/pkg/resample"
	"github.com/hiway/moodreel/pkg/sample"
)

const (
	// OpusSampleRate is the only rate the Opus track is encoded at.
	OpusSampleRate = 48000
	// OpusFrameDuration is the pacing interval of the sink.
	OpusFrameDuration = 20 * time.Millisecond
	// OpusFrameSize is samples per channel per frame.
	OpusFrameSize = OpusSampleRate / 50

	maxPacketBytes = 4000
)

// OpusSink encodes a buffer to Opus and writes it as an Ogg stream, one
// 20ms packet per tick.
type OpusSink struct {
	bitrate int
	clock   capture.Clock
	log     zerolog.Logger

	mu       sync.Mutex
	started  bool
	cancel   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// NewOpusSink creates a sink. A bitrate of 0 keeps the encoder default.
func NewOpusSink(bitrate int, clock capture.Clock, log zerolog.Logger) *OpusSink {
	if clock == nil {
		clock = capture.RealClock{}
	}
	return &OpusSink{
		bitrate: bitrate,
		clock:   clock,
		log:     log.With().Str("component", "opus_sink").Logger(),
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start prepares the encoder and begins playback in the background.
func (s *OpusSink) Start(buf *sample.Buffer, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("opus sink already started")
	}
	select {
	case <-s.cancel:
		return nil
	default:
	}

	if err := buf.Validate(); err != nil {
		return fmt.Errorf("invalid audio buffer: %w", err)
	}
	channels := buf.NumChannels()
	if channels > 2 {
		return fmt.Errorf("opus track supports 1 or 2 channels, got %d", channels)
	}
	resampled, err := resample.To(buf, OpusSampleRate)
	if err != nil {
		return err
	}
	pcm := resampled.Interleave()

	enc, err := opus.NewEncoder(OpusSampleRate, channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder error: %w", err)
	}
	if s.bitrate > 0 {
		if err := enc.SetBitrate(s.bitrate); err != nil {
			return fmt.Errorf("failed to set opus bitrate %d: %w", s.bitrate, err)
		}
	}
	ogg, err := oggwriter.NewWith(writerOnly{w}, OpusSampleRate, uint16(channels))
	if err != nil {
		return fmt.Errorf("ogg writer error: %w", err)
	}

	s.started = true
	go s.run(enc, ogg, pcm, channels)
	return nil
}

func (s *OpusSink) run(enc *opus.Encoder, ogg *oggwriter.OggWriter, pcm []float32, channels int) {
	defer close(s.done)
	defer func() {
		// Releases the writer; the capture input behind writerOnly stays open.
		if err := ogg.Close(); err != nil && s.err == nil {
			s.err = fmt.Errorf("ogg close error: %w", err)
		}
	}()

	ticker := s.clock.NewTicker(OpusFrameDuration)
	defer ticker.Stop()

	frame := make([]float32, OpusFrameSize*channels)
	packet := make([]byte, maxPacketBytes)
	var (
		timestamp uint32
		seq       uint16
		packets   int
	)
	for off := 0; off < len(pcm); off += len(frame) {
		n := copy(frame, pcm[off:])
		clear(frame[n:]) // zero-pad the final frame

		size, err := enc.EncodeFloat32(frame, packet)
		if err != nil {
			s.err = fmt.Errorf("opus encode error: %w", err)
			return
		}
		err = ogg.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				SequenceNumber: seq,
				Timestamp:      timestamp,
			},
			Payload: packet[:size],
		})
		if err != nil {
			if s.canceled() {
				s.log.Debug().Err(err).Msg("Audio track closed during cancel")
				return
			}
			s.err = fmt.Errorf("ogg write error: %w", err)
			return
		}
		timestamp += OpusFrameSize
		seq++
		packets++

		select {
		case <-s.cancel:
			s.log.Debug().Int("packets", packets).Msg("Audio playback canceled")
			return
		case <-ticker.C():
		}
	}
	s.log.Debug().Int("packets", packets).Msg("Audio playback finished")
}

func (s *OpusSink) canceled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// Cancel ends playback early.
func (s *OpusSink) Cancel() {
	s.stopOnce.Do(func() { close(s.cancel) })
}

// Wait blocks until playback has stopped and reports encode failures.
func (s *OpusSink) Wait() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	<-s.done
	return s.err
}

// writerOnly hides Close so the Ogg writer cannot close the capture input.
type writerOnly struct {
	w io.Writer
}

func (w writerOnly) Write(p []byte) (int, error) { return w.w.Write(p) }
