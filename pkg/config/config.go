package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
)

// Audio configures the offline ambient renderer.
type Audio struct {
	Seconds    float64 `toml:"seconds"`
	SampleRate int     `toml:"sample_rate"`
	Channels   int     `toml:"channels"`
}

// Validate checks if the audio configuration is valid.
func (a *Audio) Validate() error {
	if a.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	if a.SampleRate < 3000 || a.SampleRate > 768000 {
		return fmt.Errorf("sample_rate %d out of range [3000, 768000]", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 32 {
		return fmt.Errorf("channels %d out of range [1, 32]", a.Channels)
	}
	return nil
}

// Video configures frame rendering and capture.
type Video struct {
	Seconds float64 `toml:"seconds"`
	FPS     int     `toml:"fps"`
	Width   int     `toml:"width"`
	Height  int     `toml:"height"`
	Bitrate int     `toml:"bitrate"`
}

// Validate checks if the video configuration is valid.
func (v *Video) Validate() error {
	if v.Seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	if v.FPS < 1 || v.FPS > 240 {
		return fmt.Errorf("fps %d out of range [1, 240]", v.FPS)
	}
	if v.Width <= 0 || v.Height <= 0 || v.Width%2 != 0 || v.Height%2 != 0 {
		return fmt.Errorf("size %dx%d must be positive and even", v.Width, v.Height)
	}
	if v.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive")
	}
	return nil
}

// Merge configures the audio/video merge timers and the Opus track.
type Merge struct {
	LeadMs      int64 `toml:"lead_ms"`
	MarginMs    int64 `toml:"margin_ms"`
	OpusBitrate int   `toml:"opus_bitrate"`
}

// Lead is the delay between the first frame and audio start.
func (m *Merge) Lead() time.Duration { return time.Duration(m.LeadMs) * time.Millisecond }

// Margin is the extra capture time after the audio ends.
func (m *Merge) Margin() time.Duration { return time.Duration(m.MarginMs) * time.Millisecond }

// Validate checks if the merge configuration is valid.
func (m *Merge) Validate() error {
	if m.LeadMs < 0 {
		return fmt.Errorf("lead_ms cannot be negative")
	}
	if m.MarginMs < 0 {
		return fmt.Errorf("margin_ms cannot be negative")
	}
	if m.OpusBitrate < 0 {
		return fmt.Errorf("opus_bitrate cannot be negative")
	}
	return nil
}

// FFmpeg locates the encoder binary.
type FFmpeg struct {
	Path string `toml:"path"`
}

// Validate checks if the ffmpeg configuration is valid.
func (f *FFmpeg) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Output controls where the CLI writes blobs.
type Output struct {
	Dir string `toml:"dir"`
}

// Validate expands a leading ~ in Dir.
func (o *Output) Validate() error {
	if o.Dir == "" {
		o.Dir = "."
	}
	dir, err := homedir.Expand(o.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand dir '%s': %w", o.Dir, err)
	}
	o.Dir = dir
	return nil
}

// Queue bounds the number of waiting generation requests.
type Queue struct {
	MaxPending int `toml:"max_pending"`
}

// Validate checks if the queue configuration is valid.
func (q *Queue) Validate() error {
	if q.MaxPending < 0 {
		return fmt.Errorf("max_pending cannot be negative")
	}
	return nil
}

// Config holds the complete moodreel configuration.
type Config struct {
	Audio  Audio  `toml:"audio"`
	Video  Video  `toml:"video"`
	Merge  Merge  `toml:"merge"`
	FFmpeg FFmpeg `toml:"ffmpeg"`
	Output Output `toml:"output"`
	Queue  Queue  `toml:"queue"`
	Debug  bool   `toml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: Audio{Seconds: 8, SampleRate: 44100, Channels: 2},
		Video: Video{
			Seconds: 8,
			FPS:     30,
			Width:   1280,
			Height:  720,
			Bitrate: 2_500_000,
		},
		Merge:  Merge{LeadMs: 50, MarginMs: 100, OpusBitrate: 96000},
		FFmpeg: FFmpeg{Path: "ffmpeg"},
		Output: Output{Dir: "."},
		Queue:  Queue{MaxPending: 4},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"audio", &c.Audio},
		{"video", &c.Video},
		{"merge", &c.Merge},
		{"ffmpeg", &c.FFmpeg},
		{"output", &c.Output},
		{"queue", &c.Queue},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("invalid [%s]: %w", s.name, err)
		}
	}
	return nil
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string, log zerolog.Logger) (*Config, error) {
	cfg := Default()
	if err := cfg.DecodeFile(path, log); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Msg("Configuration loaded and validated successfully")
	return cfg, nil
}

// DecodeFile decodes the TOML file at path into c. Keys absent from the file keep
// their current values, so later files override earlier ones.
func (c *Config) DecodeFile(path string, log zerolog.Logger) error {
	log.Debug().Str("path", path).Msg("Loading configuration file")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("Unknown configuration key")
	}
	return nil
}
