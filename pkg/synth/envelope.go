package synth

import "sort"

// Point is one automation event: the parameter reaches Value at Time seconds.
type Point struct {
	Time  float64
	Value float64
}

// Automation is a parameter timeline made of linear ramps between points.
// Before the first point it holds the first value, after the last point it
// holds the last value.
type Automation struct {
	points []Point
}

// NewAutomation starts a timeline at value v at t=0.
func NewAutomation(v float64) *Automation {
	return &Automation{points: []Point{{Time: 0, Value: v}}}
}

// LinearRampTo appends a linear ramp reaching v at time t.
func (a *Automation) LinearRampTo(v, t float64) *Automation {
	a.points = append(a.points, Point{Time: t, Value: v})
	sort.SliceStable(a.points, func(i, j int) bool {
		return a.points[i].Time < a.points[j].Time
	})
	return a
}

// Points returns a copy of the timeline.
func (a *Automation) Points() []Point {
	return append([]Point(nil), a.points...)
}

// At evaluates the timeline at t seconds.
func (a *Automation) At(t float64) float64 {
	n := len(a.points)
	if n == 0 {
		return 0
	}
	if t <= a.points[0].Time {
		// Coincident events at the start: the last one wins.
		i := 0
		for i+1 < n && a.points[i+1].Time <= t {
			i++
		}
		return a.points[i].Value
	}

	// Index of the last point at or before t.
	i := sort.Search(n, func(k int) bool { return a.points[k].Time > t }) - 1
	if i >= n-1 {
		return a.points[n-1].Value
	}
	p, q := a.points[i], a.points[i+1]
	frac := (t - p.Time) / (q.Time - p.Time)
	return p.Value + (q.Value-p.Value)*frac
}

// MasterEnvelope builds the fade-in/sustain/fade-out gain curve:
// 0 at 0s, 0.8 at 1s, 0.6 at duration-1s and 0 at duration. Ramps are kept
// in time order, so for durations between 1s and 2s the 0.6 point comes
// before the 0.8 one. At 1s or less, duration-1 is not after the start and
// both fades meet at duration/2 instead.
func MasterEnvelope(duration float64) *Automation {
	fadeIn, fadeOut := 1.0, duration-1
	if duration <= 1 {
		fadeIn = duration / 2
		fadeOut = fadeIn
	}
	return NewAutomation(0).
		LinearRampTo(0.8, fadeIn).
		LinearRampTo(0.6, fadeOut).
		LinearRampTo(0, duration)
}
