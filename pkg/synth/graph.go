package synth

import (
	"errors"
	"fmt"
	"math"

	"github.com/hiway/moodreel/pkg/sample"
)

// ErrRender reports a failure to build or render an audio graph.
var ErrRender = errors.New("render failure")

// signal is one block of audio, one slice per channel.
type signal [][]float64

func (s signal) channels() int { return len(s) }

// Block describes the render pass every node sees.
type Block struct {
	SampleRate float64
	Frames     int
}

// Time returns the time in seconds of frame i.
func (b Block) Time(i int) float64 {
	return float64(i) / b.SampleRate
}

// Node is one processing stage of a Graph. Process receives the sum of all
// audio inputs (nil for sources) and the mono sum of every parameter input,
// keyed by parameter name, and returns the node's output for the whole block.
type Node interface {
	Name() string
	Process(b Block, in signal, params map[string][]float64) (signal, error)
}

// Edge connects the output of From to the audio input of To, or to the
// parameter Param of To when Param is set.
type Edge struct {
	From  string
	To    string
	Param string
}

func (e Edge) String() string {
	if e.Param != "" {
		return e.From + " -> " + e.To + "." + e.Param
	}
	return e.From + " -> " + e.To
}

// Builder assembles a Graph. It is not safe for concurrent use.
type Builder struct {
	nodes map[string]Node
	names []string
	edges []Edge
	errs  []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]Node)}
}

// Add registers a node under its name.
func (b *Builder) Add(n Node) *Builder {
	if _, dup := b.nodes[n.Name()]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", n.Name()))
		return b
	}
	b.nodes[n.Name()] = n
	b.names = append(b.names, n.Name())
	return b
}

// Connect routes audio from one node into another.
func (b *Builder) Connect(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// ConnectParam routes audio from one node into a parameter of another.
func (b *Builder) ConnectParam(from, to, param string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, Param: param})
	return b
}

// Build validates the topology and freezes it into a Graph whose output is
// the node named out.
func (b *Builder) Build(out string) (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrRender, errors.Join(b.errs...))
	}
	if _, ok := b.nodes[out]; !ok {
		return nil, fmt.Errorf("%w: output node %q not found", ErrRender, out)
	}
	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge %s: unknown source", ErrRender, e)
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %s: unknown destination", ErrRender, e)
		}
	}

	order, err := topoSort(b.names, b.edges)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]Node, len(b.nodes))
	for k, v := range b.nodes {
		nodes[k] = v
	}
	return &Graph{
		nodes:  nodes,
		order:  order,
		edges:  append([]Edge(nil), b.edges...),
		output: out,
	}, nil
}

// topoSort orders nodes so that every edge points forward (Kahn's algorithm,
// ties broken by insertion order).
func topoSort(names []string, edges []Edge) ([]string, error) {
	indegree := make(map[string]int, len(names))
	next := make(map[string][]string, len(names))
	for _, e := range edges {
		indegree[e.To]++
		next[e.From] = append(next[e.From], e.To)
	}

	var ready, order []string
	for _, n := range names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range next[n] {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(order) != len(names) {
		return nil, fmt.Errorf("%w: graph contains a cycle", ErrRender)
	}
	return order, nil
}

// Graph is an immutable, acyclic audio-processing topology.
type Graph struct {
	nodes  map[string]Node
	order  []string
	edges  []Edge
	output string
}

// Order returns the node names in processing order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Edges returns the connections of the graph.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Output returns the name of the node whose signal is rendered.
func (g *Graph) Output() string {
	return g.output
}

// Render runs every node once over the full block and returns the output
// node's signal as a buffer with the requested channel count. Intermediate
// signals are released once their last consumer ran.
func (g *Graph) Render(sampleRate, frames, channels int) (*sample.Buffer, error) {
	if sampleRate <= 0 || frames <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid block %d Hz, %d frames, %d channels",
			ErrRender, sampleRate, frames, channels)
	}
	block := Block{SampleRate: float64(sampleRate), Frames: frames}

	pending := make(map[string]int, len(g.order))
	for _, e := range g.edges {
		pending[e.From]++
	}

	outputs := make(map[string]signal, len(g.order))
	for _, name := range g.order {
		var in signal
		params := make(map[string][]float64)
		for _, e := range g.edges {
			if e.To != name {
				continue
			}
			src := outputs[e.From]
			if e.Param != "" {
				params[e.Param] = addMono(params[e.Param], src, frames)
			} else {
				in = mix(in, src, frames)
			}
			pending[e.From]--
			if pending[e.From] == 0 && e.From != g.output {
				delete(outputs, e.From)
			}
		}

		out, err := g.nodes[name].Process(block, in, params)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", ErrRender, name, err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: node %q produced no channels", ErrRender, name)
		}
		outputs[name] = out
	}

	return toBuffer(outputs[g.output], sampleRate, frames, channels)
}

// mix sums src into dst, up-mixing mono to the wider channel count.
func mix(dst, src signal, frames int) signal {
	if dst == nil {
		dst = make(signal, src.channels())
		for ch := range dst {
			dst[ch] = make([]float64, frames)
		}
	}
	if src.channels() > dst.channels() {
		// Mono dst widened by copying its single channel.
		for dst.channels() < src.channels() {
			dst = append(dst, append([]float64(nil), dst[0]...))
		}
	}
	for ch := range dst {
		s := src[min(ch, src.channels()-1)]
		d := dst[ch]
		for i := range d {
			d[i] += s[i]
		}
	}
	return dst
}

// addMono sums the down-mixed src into dst.
func addMono(dst []float64, src signal, frames int) []float64 {
	if dst == nil {
		dst = make([]float64, frames)
	}
	scale := 1 / float64(src.channels())
	for _, s := range src {
		for i := range dst {
			dst[i] += s[i] * scale
		}
	}
	return dst
}

func toBuffer(s signal, sampleRate, frames, channels int) (*sample.Buffer, error) {
	buf := sample.New(channels, frames, sampleRate)
	for ch := 0; ch < channels; ch++ {
		src := s[min(ch, s.channels()-1)]
		dst := buf.Channels[ch]
		for i := range dst {
			v := src[i]
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: output contains NaN at frame %d", ErrRender, i)
			}
			dst[i] = float32(v)
		}
	}
	return buf, nil
}
