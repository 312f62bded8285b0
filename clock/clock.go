// Package clock abstracts the time operations used by the recorder, the
// player and the trigger scheduler so their pacing can be driven
// deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), which only moves when
// Advance is called; WaitForTimers closes the race between a goroutine
// going to sleep and the test advancing time.
package clock

import "time"

// Clock is the subset of the time package Retrace depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. C has capacity 1; ticks are
// dropped when the reader falls behind, as with time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// SleepUntil blocks until deadline. It returns at once when the deadline
// has already passed, so callers scheduling against absolute boundaries
// catch up instead of accumulating delay.
func SleepUntil(c Clock, deadline time.Time) {
	if wait := deadline.Sub(c.Now()); wait > 0 {
		c.Sleep(wait)
	}
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
