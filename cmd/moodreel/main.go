package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hiway/moodreel"
	"github.com/hiway/moodreel/pkg/config"
	"github.com/hiway/moodreel/pkg/reel"
)

const usage = `usage: moodreel [flags] <command> <prompt>

commands:
  audio   render the ambient soundtrack to <prompt>.wav
  video   record the silent animation to <prompt>.webm
  merge   record the animation with -audio as its soundtrack
  all     render the soundtrack, then merge it with the animation
  play    play the soundtrack (or -audio) on the local audio device

flags:
`

// options holds command line settings that override the configuration.
type options struct {
	configPath string
	seconds    float64
	fps        int
	out        string
	audioPath  string
	play       bool
	debug      bool
}

// loadConfig loads configuration from standard locations.
func loadConfig(explicit string, log zerolog.Logger) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit, log)
	}
	cfg := config.Default()

	// Define config file paths in order of increasing priority
	// 1. System-wide
	// 2. User-specific (XDG)
	// 3. Local directory
	configFiles := []string{"/usr/local/etc/moodreel.toml"}

	// User config dir (e.g., ~/.config/moodreel/moodreel.toml)
	userConfigPath, err := xdg.ConfigFile("moodreel/moodreel.toml")
	if err == nil {
		configFiles = append(configFiles, userConfigPath)
	} else {
		log.Warn().Err(err).Msg("Could not determine user config directory")
	}

	configFiles = append(configFiles, "./moodreel.toml")

	// Later files override earlier ones.
	for _, file := range configFiles {
		if _, err := os.Stat(file); err == nil {
			if err := cfg.DecodeFile(file, log); err != nil {
				log.Warn().Err(err).Str("path", file).Msg("Failed to load config file")
			} else {
				log.Debug().Str("path", file).Msg("Loaded config")
			}
		} else if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", file).Msg("Error checking config file")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	var opts options
	flags := flag.NewFlagSet("moodreel", flag.ExitOnError)
	flags.StringVar(&opts.configPath, "config", "", "configuration file (skips the standard search)")
	flags.Float64Var(&opts.seconds, "seconds", 0, "length in seconds (default from config)")
	flags.IntVar(&opts.fps, "fps", 0, "frames per second (default from config)")
	flags.StringVar(&opts.out, "o", "", "output file, or - for stdout (default derived from the prompt)")
	flags.StringVar(&opts.audioPath, "audio", "", "WAV or MP3 file to merge or play")
	flags.BoolVar(&opts.play, "play", false, "also play the rendered soundtrack")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		flags.Usage()
		os.Exit(2)
	}
	command := flags.Arg(0)
	prompt := strings.Join(flags.Args()[1:], " ")

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
	if opts.debug {
		log = log.Level(zerolog.DebugLevel)
	}

	cfg, err := loadConfig(opts.configPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Debug && !opts.debug {
		log = log.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := reel.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generator")
	}
	defer gen.Close()

	if err := run(ctx, gen, command, prompt, opts, log); err != nil {
		log.Error().Err(err).Str("command", command).Msg(describe(err))
		gen.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, gen *reel.Generator, command, prompt string, opts options, log zerolog.Logger) error {
	if prompt == "" && !(command == "play" && opts.audioPath != "") {
		return errors.New("a prompt is required")
	}

	switch command {
	case "audio":
		audio, err := gen.GenerateAudio(ctx, prompt, opts.seconds)
		if err != nil {
			return err
		}
		if err := write(gen.Config(), opts.out, moodreel.Filename(prompt, "wav"), audio.Blob, log); err != nil {
			return err
		}
		if opts.play {
			return gen.PlayBlob(ctx, audio.Blob)
		}
		return nil

	case "video":
		blob, err := gen.GenerateVideo(ctx, prompt, opts.seconds, opts.fps)
		if err != nil {
			return err
		}
		return write(gen.Config(), opts.out, moodreel.Filename(prompt, "webm"), blob, log)

	case "merge":
		if opts.audioPath == "" {
			return fmt.Errorf("%w: merge needs -audio", reel.ErrPrecondition)
		}
		audio, err := os.ReadFile(opts.audioPath)
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
		blob, err := gen.MergeAudioVideo(ctx, prompt, audio, opts.fps)
		if err != nil {
			return err
		}
		return write(gen.Config(), opts.out, moodreel.Filename(prompt, "webm"), blob, log)

	case "all":
		audio, err := gen.GenerateAudio(ctx, prompt, opts.seconds)
		if err != nil {
			return err
		}
		if err := write(gen.Config(), "", moodreel.Filename(prompt, "wav"), audio.Blob, log); err != nil {
			return err
		}
		blob, err := gen.MergeAudioVideo(ctx, prompt, audio.Blob, opts.fps)
		if err != nil {
			return err
		}
		return write(gen.Config(), opts.out, moodreel.Filename(prompt, "webm"), blob, log)

	case "play":
		if opts.audioPath != "" {
			audio, err := os.ReadFile(opts.audioPath)
			if err != nil {
				return fmt.Errorf("failed to read audio: %w", err)
			}
			return gen.PlayBlob(ctx, audio)
		}
		return gen.Play(ctx, prompt, opts.seconds)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// write stores blob at out, or under the configured output directory with
// the derived name. "-" writes to stdout unless stdout is a terminal.
func write(cfg *config.Config, out, name string, blob []byte, log zerolog.Logger) error {
	if out == "-" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("refusing to write binary output to a terminal")
		}
		_, err := os.Stdout.Write(blob)
		return err
	}
	if out == "" {
		out = filepath.Join(cfg.Output.Dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(out, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Info().Str("path", out).Int("bytes", len(blob)).Msg("Wrote file")
	return nil
}

// describe gives a short message for each failure kind.
func describe(err error) string {
	switch {
	case errors.Is(err, reel.ErrPrecondition):
		return "Generate audio before merging"
	case errors.Is(err, reel.ErrRender):
		return "Audio rendering failed"
	case errors.Is(err, reel.ErrDecode):
		return "Could not decode audio"
	case errors.Is(err, reel.ErrCapture):
		return "Video capture failed"
	case errors.Is(err, reel.ErrFull):
		return "Too many requests"
	default:
		return "Command failed"
	}
}
