package synth

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Waveform selects an oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Sawtooth
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("waveform(%d)", int(w))
	}
}

// Oscillator is a periodic source. Detune is in cents.
type Oscillator struct {
	name      string
	Shape     Waveform
	Frequency float64
	Detune    float64
}

// NewOscillator creates an oscillator source node.
func NewOscillator(name string, shape Waveform, freq, detune float64) *Oscillator {
	return &Oscillator{name: name, Shape: shape, Frequency: freq, Detune: detune}
}

func (o *Oscillator) Name() string { return o.name }

// EffectiveFrequency applies the detune to the base frequency.
func (o *Oscillator) EffectiveFrequency() float64 {
	return o.Frequency * math.Pow(2, o.Detune/1200)
}

func (o *Oscillator) Process(b Block, _ signal, _ map[string][]float64) (signal, error) {
	f := o.EffectiveFrequency()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite frequency %v", f)
	}
	dt := f / b.SampleRate
	out := make([]float64, b.Frames)
	phase := 0.0
	for i := range out {
		switch o.Shape {
		case Sine:
			out[i] = math.Sin(2 * math.Pi * phase)
		case Sawtooth:
			// Zero at phase 0 and rising; the jump sits at half a cycle.
			q := phase + 0.5
			q -= math.Floor(q)
			out[i] = 2*q - 1 - polyBLEP(q, math.Abs(dt))
		case Triangle:
			switch {
			case phase < 0.25:
				out[i] = 4 * phase
			case phase < 0.75:
				out[i] = 2 - 4*phase
			default:
				out[i] = 4*phase - 4
			}
		default:
			return nil, fmt.Errorf("unsupported waveform %s", o.Shape)
		}
		phase += dt
		phase -= math.Floor(phase)
	}
	return signal{out}, nil
}

// polyBLEP smooths the discontinuity of a sawtooth at t=0 (t in cycles).
func polyBLEP(t, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	default:
		return 0
	}
}

// BufferSource plays pre-generated mono samples once, then silence.
type BufferSource struct {
	name string
	Data []float64
}

// NewBufferSource creates a one-shot sample player.
func NewBufferSource(name string, data []float64) *BufferSource {
	return &BufferSource{name: name, Data: data}
}

func (s *BufferSource) Name() string { return s.name }

func (s *BufferSource) Process(b Block, _ signal, _ map[string][]float64) (signal, error) {
	out := make([]float64, b.Frames)
	copy(out, s.Data)
	return signal{out}, nil
}

// Gain scales its input by a fixed value or by an automation timeline.
type Gain struct {
	name       string
	Value      float64
	Automation *Automation
}

// NewGain creates a fixed gain stage.
func NewGain(name string, v float64) *Gain {
	return &Gain{name: name, Value: v}
}

// NewAutomatedGain creates a gain stage that follows a timeline.
func NewAutomatedGain(name string, a *Automation) *Gain {
	return &Gain{name: name, Automation: a}
}

func (g *Gain) Name() string { return g.name }

func (g *Gain) Process(b Block, in signal, _ map[string][]float64) (signal, error) {
	if in == nil {
		return silence(b.Frames), nil
	}
	out := make(signal, in.channels())
	for ch, src := range in {
		dst := make([]float64, b.Frames)
		for i, v := range src {
			gain := g.Value
			if g.Automation != nil {
				gain = g.Automation.At(b.Time(i))
			}
			dst[i] = v * gain
		}
		out[ch] = dst
	}
	return out, nil
}

// ParamFrequency is the lowpass cutoff modulation input.
const ParamFrequency = "frequency"

// Lowpass is a second-order lowpass biquad. Q is in dB. Signals connected to
// its "frequency" parameter are added to Frequency sample by sample.
type Lowpass struct {
	name      string
	Frequency float64
	Q         float64
}

// NewLowpass creates a lowpass filter stage.
func NewLowpass(name string, freq, q float64) *Lowpass {
	return &Lowpass{name: name, Frequency: freq, Q: q}
}

func (f *Lowpass) Name() string { return f.name }

func (f *Lowpass) Process(b Block, in signal, params map[string][]float64) (signal, error) {
	if in == nil {
		return silence(b.Frames), nil
	}
	mod := params[ParamFrequency]
	nyquist := b.SampleRate / 2
	resonance := math.Pow(10, f.Q/20)

	out := make(signal, in.channels())
	for ch := range out {
		out[ch] = make([]float64, b.Frames)
	}
	// Per channel filter memory.
	x1 := make([]float64, in.channels())
	x2 := make([]float64, in.channels())
	y1 := make([]float64, in.channels())
	y2 := make([]float64, in.channels())

	for i := 0; i < b.Frames; i++ {
		freq := f.Frequency
		if mod != nil {
			freq += mod[i]
		}
		freq = math.Max(0, math.Min(nyquist, freq))
		b0, b1, b2, a1, a2 := lowpassCoefficients(freq/nyquist, resonance)

		for ch, src := range in {
			x := src[i]
			y := b0*x + b1*x1[ch] + b2*x2[ch] - a1*y1[ch] - a2*y2[ch]
			x2[ch], x1[ch] = x1[ch], x
			y2[ch], y1[ch] = y1[ch], y
			out[ch][i] = y
		}
	}
	return out, nil
}

// lowpassCoefficients returns normalized biquad coefficients for a cutoff
// given as a fraction of nyquist.
func lowpassCoefficients(cutoff, resonance float64) (b0, b1, b2, a1, a2 float64) {
	switch {
	case cutoff >= 1:
		return 1, 0, 0, 0, 0
	case cutoff <= 0:
		return 0, 0, 0, 0, 0
	}
	w0 := math.Pi * cutoff
	alpha := math.Sin(w0) / (2 * resonance)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	b0 = (1 - cosw) / 2 / a0
	b1 = (1 - cosw) / a0
	b2 = b0
	a1 = -2 * cosw / a0
	a2 = (1 - alpha) / a0
	return b0, b1, b2, a1, a2
}

const (
	convolverGainCalibration = 0.00125
	convolverCalibrationRate = 44100
	convolverMinPower        = 0.000125
)

// Convolver applies an impulse response by FFT convolution. Input channel c
// is convolved with impulse channel c; a mono input feeds every impulse
// channel. The output is truncated to the block length.
type Convolver struct {
	name      string
	Impulse   [][]float64
	Normalize bool
	rate      float64
}

// NewConvolver creates a convolution stage. rate is the sample rate the
// impulse was generated at.
func NewConvolver(name string, impulse [][]float64, rate float64, normalize bool) *Convolver {
	return &Convolver{name: name, Impulse: impulse, Normalize: normalize, rate: rate}
}

func (c *Convolver) Name() string { return c.name }

// Scale returns the gain applied to the impulse response.
func (c *Convolver) Scale() float64 {
	if !c.Normalize {
		return 1
	}
	var sum float64
	var n int
	for _, ch := range c.Impulse {
		for _, v := range ch {
			sum += v * v
		}
		n += len(ch)
	}
	power := convolverMinPower
	if n > 0 {
		if p := math.Sqrt(sum / float64(n)); !math.IsNaN(p) && !math.IsInf(p, 0) && p >= convolverMinPower {
			power = p
		}
	}
	scale := 1 / power * convolverGainCalibration * (convolverCalibrationRate / c.rate)
	if len(c.Impulse) == 4 {
		scale *= 0.5
	}
	return scale
}

func (c *Convolver) Process(b Block, in signal, _ map[string][]float64) (signal, error) {
	if len(c.Impulse) == 0 || len(c.Impulse[0]) == 0 {
		return nil, errors.New("convolver has no impulse response")
	}
	if in == nil {
		return silence(b.Frames), nil
	}

	irLen := len(c.Impulse[0])
	n := nextPow2(b.Frames + irLen - 1)
	fft := fourier.NewFFT(n)
	scale := c.Scale() / float64(n)

	padded := make([]float64, n)
	spectra := make([][]complex128, in.channels())
	for ch, src := range in {
		clear(padded)
		copy(padded, src)
		spectra[ch] = fft.Coefficients(nil, padded)
	}

	out := make(signal, len(c.Impulse))
	work := make([]complex128, n/2+1)
	for ch, ir := range c.Impulse {
		if len(ir) != irLen {
			return nil, fmt.Errorf("impulse channel %d has %d samples, want %d", ch, len(ir), irLen)
		}
		clear(padded)
		copy(padded, ir)
		irSpec := fft.Coefficients(nil, padded)

		inSpec := spectra[min(ch, len(spectra)-1)]
		for k := range work {
			work[k] = inSpec[k] * irSpec[k]
		}
		full := fft.Sequence(nil, work)
		dst := make([]float64, b.Frames)
		for i := range dst {
			dst[i] = full[i] * scale
		}
		out[ch] = dst
	}
	return out, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Destination is the graph sink. It sums its inputs and clamps to [-1,1].
type Destination struct {
	name string
}

// NewDestination creates the output node.
func NewDestination(name string) *Destination {
	return &Destination{name: name}
}

func (d *Destination) Name() string { return d.name }

func (d *Destination) Process(b Block, in signal, _ map[string][]float64) (signal, error) {
	if in == nil {
		return silence(b.Frames), nil
	}
	out := make(signal, in.channels())
	for ch, src := range in {
		dst := make([]float64, b.Frames)
		for i, v := range src {
			dst[i] = math.Max(-1, math.Min(1, v))
		}
		out[ch] = dst
	}
	return out, nil
}

// Bus is a summing junction with unity gain.
type Bus struct {
	name string
}

// NewBus creates a summing node.
func NewBus(name string) *Bus {
	return &Bus{name: name}
}

func (m *Bus) Name() string { return m.name }

func (m *Bus) Process(b Block, in signal, _ map[string][]float64) (signal, error) {
	if in == nil {
		return silence(b.Frames), nil
	}
	return in, nil
}

func silence(frames int) signal {
	return signal{make([]float64, frames)}
}
