package macro

import (
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"Retrace/clock"
)

const testQuantum = time.Millisecond

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	pending []Movement
	err     error
	drains  int
}

func (f *fakeSource) Push(moves ...Movement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, moves...)
}

func (f *fakeSource) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) Drain() ([]Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	if f.err != nil {
		return nil, f.err
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

type injection struct {
	Move Movement
	At   time.Time
}

type fakeSink struct {
	mu    sync.Mutex
	clock clock.Clock
	got   []injection
	err   error
}

func newFakeSink(c clock.Clock) *fakeSink {
	return &fakeSink{clock: c}
}

func (f *fakeSink) Inject(m Movement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, injection{Move: m, At: f.clock.Now()})
	return nil
}

func (f *fakeSink) Injected() []injection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]injection, len(f.got))
	copy(out, f.got)
	return out
}

func (f *fakeSink) Moves() []Movement {
	var out []Movement
	for _, in := range f.Injected() {
		out = append(out, in.Move)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// advanceUntil steps the fake clock one quantum at a time, whenever a
// worker is asleep on it, until done is closed.
func advanceUntil(t *testing.T, c *clock.FakeClock, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("workers did not finish")
		default:
			if c.PendingCount() > 0 {
				c.Advance(testQuantum)
			}
			runtime.Gosched()
		}
	}
}

// settle drives the clock until every worker of s has returned. The
// caller must not Tick concurrently.
func settle(t *testing.T, s *Session, c *clock.FakeClock) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	advanceUntil(t, c, done)
}
