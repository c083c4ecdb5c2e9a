package player

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/hiway/moodreel/pkg/resample"
	"github.com/hiway/moodreel/pkg/sample"
)

const (
	// SampleRate of the output device; Encode resamples other rates to it.
	SampleRate = 44100
	// ChannelCount represents stereo audio
	ChannelCount = 2
	// BytesPerSample represents 32-bit float samples
	BytesPerSample = 4
)

// Player is the interface for playing sample buffers.
type Player interface {
	Play(buf *sample.Buffer) error
	Close() error
}

var (
	otoCtx *oto.Context
	once   sync.Once
	ctxErr error
)

// initOtoContext initializes the oto context singleton. Oto allows a single
// context per process.
func initOtoContext() (*oto.Context, error) {
	once.Do(func() {
		op := &oto.NewContextOptions{}
		op.SampleRate = SampleRate
		op.ChannelCount = ChannelCount
		op.Format = oto.FormatFloat32LE

		var readyChan chan struct{}
		otoCtx, readyChan, ctxErr = oto.NewContext(op)
		if ctxErr == nil {
			<-readyChan // Wait for the context to be ready
		}
	})
	return otoCtx, ctxErr
}

// OtoPlayer plays buffers on the default audio device.
type OtoPlayer struct {
	log zerolog.Logger
	ctx *oto.Context
	mu  sync.Mutex // one buffer at a time
}

// NewOtoPlayer creates a new player using the Oto library.
func NewOtoPlayer(log zerolog.Logger) (*OtoPlayer, error) {
	ctx, err := initOtoContext()
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Oto audio context")
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	log.Debug().Msg("Oto audio context initialized successfully")

	return &OtoPlayer{
		log: log.With().Str("player_type", "oto").Logger(),
		ctx: ctx,
	}, nil
}

// Play blocks until buf has been played.
func (p *OtoPlayer) Play(buf *sample.Buffer) error {
	data, err := Encode(buf)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Debug().
		Dur("duration", buf.Duration()).
		Int("channels", buf.NumChannels()).
		Msg("Playing buffer")
	if err := p.playSound(bytes.NewReader(data)); err != nil {
		p.log.Error().Err(err).Msg("Failed to play buffer")
		return fmt.Errorf("failed to play buffer: %w", err)
	}
	p.log.Trace().Msg("Finished playing buffer")
	return nil
}

// Encode converts buf to the device format: interleaved stereo float32 LE
// at SampleRate. Other rates are resampled; mono is duplicated to both
// channels and extra channels are dropped.
func Encode(buf *sample.Buffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer: %w", err)
	}
	buf, err := resample.To(buf, SampleRate)
	if err != nil {
		return nil, err
	}

	left := buf.Channels[0]
	right := left
	if buf.NumChannels() > 1 {
		right = buf.Channels[1]
	}
	out := make([]byte, len(left)*ChannelCount*BytesPerSample)
	for i := range left {
		off := i * ChannelCount * BytesPerSample
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(left[i]))
		binary.LittleEndian.PutUint32(out[off+BytesPerSample:], math.Float32bits(right[i]))
	}
	return out, nil
}

// playSound plays the raw audio data from an io.Reader.
func (p *OtoPlayer) playSound(reader io.Reader) error {
	player := p.ctx.NewPlayer(reader)
	defer player.Close() // Ensure player resources are released

	player.Play()

	// Wait for playback to complete. This is blocking.
	for player.IsPlaying() {
		time.Sleep(time.Millisecond) // Prevent busy-waiting
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("oto player error: %w", err)
	}
	return nil
}

// Close cleans up the OtoPlayer resources.
func (p *OtoPlayer) Close() error {
	p.log.Debug().Msg("Closing OtoPlayer")
	// The Oto context is global and shared, so it stays open.
	return nil
}

// --- StubPlayer (Kept for testing) ---

// StubPlayer logs playback instead of using an audio device.
type StubPlayer struct {
	log    zerolog.Logger
	mu     sync.Mutex
	played []time.Duration
}

// NewStubPlayer creates a new StubPlayer.
func NewStubPlayer(log zerolog.Logger) *StubPlayer {
	return &StubPlayer{log: log.With().Str("player_type", "stub").Logger()}
}

// Play encodes the buffer for the device and records how long it would
// play, without sleeping.
func (p *StubPlayer) Play(buf *sample.Buffer) error {
	data, err := Encode(buf)
	if err != nil {
		return err
	}
	frames := len(data) / (ChannelCount * BytesPerSample)
	d := time.Duration(frames) * time.Second / SampleRate
	p.log.Debug().Dur("duration", d).Msg("Simulating playing buffer")
	p.mu.Lock()
	p.played = append(p.played, d)
	p.mu.Unlock()
	return nil
}

// Played returns the device-rate duration of every buffer played so far.
func (p *StubPlayer) Played() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.played...)
}

// Close cleans up the StubPlayer resources.
func (p *StubPlayer) Close() error {
	p.log.Debug().Msg("Closing StubPlayer")
	return nil
}
