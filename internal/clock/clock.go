// Package clock abstracts wall-clock access so the scheduler and the
// sprint state machine can be driven deterministically in tests.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock is the time source injected into every service that reads the
// current time or ticks on an interval.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

// Unix returns the clock's current time in epoch seconds.
func Unix(c Clock) int64 {
	return c.Now().Unix()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// FakeClock only moves when Advance or Set is called. Tickers fire at
// most once per Advance, dropping ticks when the consumer is behind.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	channel  chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		channel:  make(chan time.Time, 1),
		interval: d,
		next:     c.current.Add(d),
	}
	c.tickers = append(c.tickers, ft)

	return &Ticker{
		C: ft.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires due tickers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	for _, ft := range c.tickers {
		if ft.stopped || ft.next.After(c.current) {
			continue
		}
		for !ft.next.After(c.current) {
			ft.next = ft.next.Add(ft.interval)
		}
		select {
		case ft.channel <- c.current:
		default:
		}
	}
}

// Set jumps the clock to t without firing tickers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

var units = []struct {
	name    string
	seconds int64
}{
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// FormatSeconds renders a duration in seconds as
// "1 day, 2 hours, 5 minutes, 1 second". Zero units are omitted and a
// non-positive input renders as "0 seconds".
func FormatSeconds(seconds int64) string {
	if seconds <= 0 {
		return "0 seconds"
	}

	parts := make([]string, 0, len(units))
	for _, u := range units {
		n := seconds / u.seconds
		if n == 0 {
			continue
		}
		seconds -= n * u.seconds

		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}

	return strings.Join(parts, ", ")
}
