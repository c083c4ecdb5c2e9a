package synth

import (
	"fmt"
	"math"
	"time"

	"github.com/hiway/moodreel/pkg/prompt"
	"github.com/hiway/moodreel/pkg/sample"
)

// Node names of the ambient graph.
const (
	NodeOscA        = "osc-a"
	NodeOscB        = "osc-b"
	NodeOscGain     = "osc-gain"
	NodeNoise       = "noise"
	NodeLFO         = "lfo"
	NodeLFODepth    = "lfo-depth"
	NodeFilter      = "filter"
	NodeNoiseGain   = "noise-gain"
	NodeMix         = "mix"
	NodeReverb      = "reverb"
	NodeMaster      = "master"
	NodeDestination = "destination"
)

const (
	oscGain        = 0.3
	noiseGain      = 0.15
	noiseAmplitude = 0.02
	filterCutoff   = 800.0
	filterQ        = 1.0
	lfoDepth       = 600.0
	impulseSeconds = 2.0
	impulseDecay   = 3.0
	impulseLevel   = 0.6
)

// MaxDuration bounds a single render so a bad request cannot exhaust memory.
const MaxDuration = 10 * time.Minute

// Options describe the shape of the rendered buffer.
type Options struct {
	Seconds    float64
	SampleRate int
	Channels   int
}

// DefaultOptions renders 8 seconds of 44.1kHz stereo.
func DefaultOptions() Options {
	return Options{Seconds: 8, SampleRate: 44100, Channels: 2}
}

// Frames returns the buffer length in frames.
func (o Options) Frames() int {
	return int(math.Round(o.Seconds * float64(o.SampleRate)))
}

// Validate reports invalid render options as ErrRender.
func (o Options) Validate() error {
	if math.IsNaN(o.Seconds) || math.IsInf(o.Seconds, 0) || o.Seconds <= 0 {
		return fmt.Errorf("%w: duration must be a positive number of seconds, got %v", ErrRender, o.Seconds)
	}
	if o.Seconds > MaxDuration.Seconds() {
		return fmt.Errorf("%w: duration %vs exceeds the %v limit", ErrRender, o.Seconds, MaxDuration)
	}
	if o.SampleRate < 3000 || o.SampleRate > 768000 {
		return fmt.Errorf("%w: sample rate %d outside 3000-768000 Hz", ErrRender, o.SampleRate)
	}
	if o.Channels < 1 || o.Channels > 32 {
		return fmt.Errorf("%w: channel count %d outside 1-32", ErrRender, o.Channels)
	}
	if o.Frames() == 0 {
		return fmt.Errorf("%w: duration %vs is shorter than one frame", ErrRender, o.Seconds)
	}
	return nil
}

func validateParams(p prompt.Params) error {
	for name, v := range map[string]float64{
		"base frequency": p.BaseFrequency,
		"lfo rate":       p.LFORate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrRender, name, v)
		}
	}
	return nil
}

// NewAmbientGraph builds the fixed ambient topology for one render. The noise
// bed is drawn from src first, then the left and right impulse channels.
func NewAmbientGraph(p prompt.Params, opts Options, src Source) (*Graph, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = NewRandomSource()
	}

	frames := opts.Frames()
	rate := float64(opts.SampleRate)

	noise := make([]float64, frames)
	for i := range noise {
		noise[i] = (src.Float64()*2 - 1) * noiseAmplitude
	}
	impulse := Impulse(src, int(impulseSeconds*rate), 2)

	detune := float64(p.Detune)
	return NewBuilder().
		Add(NewOscillator(NodeOscA, Sawtooth, p.BaseFrequency, detune)).
		Add(NewOscillator(NodeOscB, Triangle, p.BaseFrequency/2, -detune)).
		Add(NewGain(NodeOscGain, oscGain)).
		Add(NewBufferSource(NodeNoise, noise)).
		Add(NewOscillator(NodeLFO, Sine, p.LFORate, 0)).
		Add(NewGain(NodeLFODepth, lfoDepth)).
		Add(NewLowpass(NodeFilter, filterCutoff, filterQ)).
		Add(NewGain(NodeNoiseGain, noiseGain)).
		Add(NewBus(NodeMix)).
		Add(NewConvolver(NodeReverb, impulse, rate, true)).
		Add(NewAutomatedGain(NodeMaster, MasterEnvelope(opts.Seconds))).
		Add(NewDestination(NodeDestination)).
		Connect(NodeOscA, NodeOscGain).
		Connect(NodeOscB, NodeOscGain).
		Connect(NodeOscGain, NodeMix).
		Connect(NodeNoise, NodeFilter).
		Connect(NodeLFO, NodeLFODepth).
		ConnectParam(NodeLFODepth, NodeFilter, ParamFrequency).
		Connect(NodeFilter, NodeNoiseGain).
		Connect(NodeNoiseGain, NodeMix).
		Connect(NodeMix, NodeReverb).
		Connect(NodeMix, NodeMaster).
		Connect(NodeReverb, NodeMaster).
		Connect(NodeMaster, NodeDestination).
		Build(NodeDestination)
}

// Impulse generates a decaying noise tail of the given length per channel:
// (2u-1) * (1-i/length)^3 * 0.6.
func Impulse(src Source, length, channels int) [][]float64 {
	ir := make([][]float64, channels)
	for ch := range ir {
		data := make([]float64, length)
		for i := range data {
			decay := math.Pow(1-float64(i)/float64(length), impulseDecay)
			data[i] = (src.Float64()*2 - 1) * decay * impulseLevel
		}
		ir[ch] = data
	}
	return ir
}

// Render synthesizes the ambient track for p in one offline pass. A nil src
// uses a fresh random source. Every failure wraps ErrRender.
func Render(p prompt.Params, opts Options, src Source) (*sample.Buffer, error) {
	g, err := NewAmbientGraph(p, opts, src)
	if err != nil {
		return nil, err
	}
	return g.Render(opts.SampleRate, opts.Frames(), opts.Channels)
}
