// Package sim provides in-process media and slideshow backends driven by a
// simulation clock. The daemon uses them in place of a browser and the
// player tests use them to observe issued commands.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Recorder collects the commands issued to the simulated backends.
type Recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *Recorder) record(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, fmt.Sprintf(format, args...))
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// Len returns the number of recorded commands.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

// Reset drops all recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = nil
}

// dispatcher runs posted callbacks one at a time, in order, on its own
// goroutine, so commands never call back into their caller.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// Ticker is advanced by the clock.
type Ticker interface {
	Advance(dt float64)
}

// Clock advances simulated media in real time.
type Clock struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	tickers []Ticker
}

// NewClock creates a clock that ticks every interval.
func NewClock(interval time.Duration, logger *slog.Logger, tickers ...Ticker) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		interval: interval,
		logger:   logger,
		tickers:  tickers,
	}
}

// Add registers another ticker.
func (c *Clock) Add(t Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickers = append(c.tickers, t)
}

// Step advances every ticker by dt seconds.
func (c *Clock) Step(dt float64) {
	c.mu.Lock()
	tickers := make([]Ticker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	for _, t := range tickers {
		t.Advance(dt)
	}
}

// Run ticks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	c.logger.Info("starting simulation clock", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping simulation clock")
			return nil
		case <-ticker.C:
			c.Step(c.interval.Seconds())
		}
	}
}
