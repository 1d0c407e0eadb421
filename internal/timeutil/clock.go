// Package timeutil abstracts the clock so that time-driven behaviour can be
// tested without sleeping.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the time operations used by the pipeline.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks at a fixed interval until stopped.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker. No more ticks are delivered afterwards.
	Stop()
}

// RealClock implements Clock with the time package.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually advanced clock for tests.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock returns a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires every ticker whose next
// tick is due. A ticker fires at most once per Advance call, like a real
// ticker whose receiver is slow.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := make([]*MockTicker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fireIfDue(now)
	}
}

// NewTicker creates a MockTicker whose first tick is due d from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// ActiveTickers returns the number of tickers that have not been stopped.
func (c *MockClock) ActiveTickers() int {
	c.mu.Lock()
	tickers := make([]*MockTicker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	n := 0
	for _, t := range tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// MockTicker is a ticker driven by MockClock.Advance.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// C returns the tick channel.
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop prevents further ticks.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *MockTicker) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.interval)
	}

	select {
	case t.ch <- now:
	default:
	}
}
