package capture

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a Clock that only moves when Advance is called. Ticks are
// delivered synchronously: Advance blocks until each tick is received or the
// ticker is stopped. Timer callbacks run on the Advance goroutine.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	timers  []*manualTimer
	created chan struct{}
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, created: make(chan struct{}, 64)}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TickerCreated receives once per NewTicker call.
func (c *ManualClock) TickerCreated() <-chan struct{} {
	return c.created
}

// TimerDelays returns the delay of every AfterFunc call in call order.
func (c *ManualClock) TimerDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	t := &manualTicker{
		interval: d,
		next:     c.now.Add(d),
		c:        make(chan time.Time),
		stopped:  make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	c.created <- struct{}{}
	return t
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{delay: d, at: c.now.Add(d), f: f, seq: len(c.timers)}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, delivering every tick and firing
// every timer that falls due, in time order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		at, fire := c.nextEvent(target)
		if fire == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = at
		c.mu.Unlock()
		fire()
	}
}

// nextEvent finds the earliest pending tick or timer at or before target.
// Callers hold c.mu.
func (c *ManualClock) nextEvent(target time.Time) (time.Time, func()) {
	var (
		best time.Time
		fire func()
	)
	pending := make([]*manualTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.done() && !t.at.After(target) {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].at.Equal(pending[j].at) {
			return pending[i].seq < pending[j].seq
		}
		return pending[i].at.Before(pending[j].at)
	})
	if len(pending) > 0 {
		t := pending[0]
		best = t.at
		fire = func() {
			if t.claim() {
				t.f()
			}
		}
	}
	var due *manualTicker
	for _, tk := range c.tickers {
		if tk.isStopped() || tk.next.After(target) {
			continue
		}
		if (fire == nil && due == nil) || tk.next.Before(best) {
			due = tk
			best = tk.next
		}
	}
	if due != nil {
		// Consume the tick before releasing the lock so it fires once.
		at := due.next
		due.next = due.next.Add(due.interval)
		fire = func() {
			select {
			case due.c <- at:
			case <-due.stopped:
			}
		}
	}
	return best, fire
}

type manualTicker struct {
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *manualTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type manualTimer struct {
	delay time.Duration
	at    time.Time
	f     func()
	seq   int

	mu    sync.Mutex
	fired bool
	stop  bool
}

func (t *manualTimer) done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired || t.stop
}

func (t *manualTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stop {
		return false
	}
	t.fired = true
	return true
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stop {
		return false
	}
	t.stop = true
	return true
}
