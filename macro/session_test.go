package macro

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Retrace/clock"
)

type sessionHarness struct {
	session *Session
	clock   *clock.FakeClock
	source  *fakeSource
	sink    *fakeSink

	mu     sync.Mutex
	errors []error
}

func newHarness(t *testing.T, triggers ...Trigger) *sessionHarness {
	t.Helper()
	h := &sessionHarness{clock: clock.Fake(epoch), source: &fakeSource{}}
	h.sink = newFakeSink(h.clock)
	s, err := NewSession(Options{
		Quantum:      testQuantum,
		TickInterval: 50 * time.Millisecond,
		Source:       h.source,
		Sink:         h.sink,
		Triggers:     triggers,
		Clock:        h.clock,
		Logger:       discardLogger(),
		OnError: func(err error) {
			h.mu.Lock()
			h.errors = append(h.errors, err)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func (h *sessionHarness) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errors...)
}

// record runs a full recording session through the public API, feeding
// one batch per quantum.
func (h *sessionHarness) record(t *testing.T, quanta [][]Movement) {
	t.Helper()
	s := h.session
	s.RequestRecordToggle()
	s.Tick(Triggers{})
	require.Equal(t, StateRecording, s.State())

	for _, batch := range quanta {
		h.clock.WaitForTimers(1)
		h.source.Push(batch...)
		h.clock.Advance(testQuantum)
	}
	h.clock.WaitForTimers(1)

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	require.Equal(t, StateStopping, s.State())

	settle(t, s, h.clock)
	require.Equal(t, StateIdle, s.State())
}

func TestNewSessionValidation(t *testing.T) {
	src, sink := &fakeSource{}, newFakeSink(clock.Real())
	cases := map[string]Options{
		"zero quantum": {TickInterval: time.Second, Source: src, Sink: sink},
		"zero tick":    {Quantum: time.Millisecond, Source: src, Sink: sink},
		"missing src":  {Quantum: time.Millisecond, TickInterval: time.Second, Sink: sink},
		"missing sink": {Quantum: time.Millisecond, TickInterval: time.Second, Source: src},
	}
	for name, opts := range cases {
		_, err := NewSession(opts)
		assert.Error(t, err, name)
	}
}

func TestSessionRecordThenPlayback(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{
		{{DX: 1}},
		nil,
		{{DX: 2, DY: 2}},
		nil,
		{{DX: -1, DY: 1}},
	})

	status := h.session.Snapshot()
	assert.Equal(t, 5, status.Samples)
	assert.Equal(t, 3, status.Moves)
	assert.Equal(t, 5*testQuantum, status.Length)

	h.session.RequestPlayback()
	h.session.Tick(Triggers{})
	require.Equal(t, StatePlaying, h.session.State())

	start := h.clock.Now()
	settle(t, h.session, h.clock)

	assert.Equal(t, StateIdle, h.session.State())
	assert.False(t, h.session.Snapshot().PendingPlayback)
	assert.Equal(t, []injection{
		{Move: Movement{DX: 1}, At: start.Add(1 * testQuantum)},
		{Move: Movement{DX: 2, DY: 2}, At: start.Add(3 * testQuantum)},
		{Move: Movement{DX: -1, DY: 1}, At: start.Add(5 * testQuantum)},
	}, h.sink.Injected())
	assert.Empty(t, h.Errors())
}

func TestSessionNewRecordingReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}, {{DX: 1}}, {{DX: 1}}})
	h.record(t, [][]Movement{{{DY: 9}}})

	assert.Equal(t, 1, h.session.Snapshot().Samples)

	h.session.RequestPlayback()
	h.session.Tick(Triggers{})
	settle(t, h.session, h.clock)
	assert.Equal(t, []Movement{{DY: 9}}, h.sink.Moves())
}

func TestSessionDoubleToggleLeavesEmptyRecording(t *testing.T) {
	h := newHarness(t)
	s := h.session

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	s.RequestRecordToggle()
	s.Tick(Triggers{})
	settle(t, s, h.clock)

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Snapshot().Samples)
}

func TestSessionRecordRequestConsumedByOneTick(t *testing.T) {
	h := newHarness(t)
	s := h.session

	// A button request and a hotkey in the same tick are one toggle.
	s.RequestRecordToggle()
	s.Tick(Triggers{Record: true})
	assert.Equal(t, StateRecording, s.State())
	assert.False(t, s.Snapshot().PendingRecord)

	s.Tick(Triggers{})
	assert.Equal(t, StateRecording, s.State(), "consumed request must not fire again")

	h.clock.WaitForTimers(1)
	s.RequestRecordToggle()
	assert.True(t, s.Snapshot().PendingRecord)
	s.Tick(Triggers{})
	assert.False(t, s.Snapshot().PendingRecord)
	assert.Equal(t, StateStopping, s.State())
	settle(t, s, h.clock)
}

func TestSessionEmptyPlaybackIsNoop(t *testing.T) {
	h := newHarness(t)
	s := h.session

	s.RequestPlayback()
	s.Tick(Triggers{})

	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Snapshot().PendingPlayback)
	assert.Zero(t, h.clock.PendingCount())
	assert.Empty(t, h.sink.Injected())
}

func TestSessionPlaybackTriggerWhilePlayingIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}, {{DX: 2}}, {{DX: 3}}})
	s := h.session

	s.RequestPlayback()
	s.Tick(Triggers{})
	require.Equal(t, StatePlaying, s.State())

	h.clock.WaitForTimers(1)
	h.clock.Advance(testQuantum)

	s.RequestPlayback()
	s.Tick(Triggers{Playback: true})
	assert.Equal(t, StatePlaying, s.State())
	h.clock.WaitForTimers(1)
	assert.Equal(t, 1, h.clock.PendingCount(), "a second player was spawned")

	settle(t, s, h.clock)
	assert.Equal(t, []Movement{{DX: 1}, {DX: 2}, {DX: 3}}, h.sink.Moves())
	assert.False(t, s.Snapshot().PendingPlayback)

	// Nothing fires after the first playback completed.
	s.Tick(Triggers{})
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionRecordTriggerWhilePlayingIsDropped(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}, {{DX: 2}}})
	s := h.session

	s.RequestPlayback()
	s.Tick(Triggers{})
	require.Equal(t, StatePlaying, s.State())

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	assert.Equal(t, StatePlaying, s.State())
	assert.False(t, s.Snapshot().PendingRecord)

	settle(t, s, h.clock)
	s.Tick(Triggers{})
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 2, s.Snapshot().Samples)
}

func TestSessionStoppingRecordingClearsPlaybackRequest(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}})
	s := h.session

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	h.clock.WaitForTimers(1)

	s.RequestPlayback()
	s.Tick(Triggers{})
	assert.Equal(t, StateRecording, s.State(), "playback must not start while recording")
	assert.True(t, s.Snapshot().PendingPlayback)

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	assert.False(t, s.Snapshot().PendingPlayback)
	settle(t, s, h.clock)

	s.Tick(Triggers{})
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, h.sink.Injected())
}

func TestSessionIgnoresTriggersWhileRecorderFinishes(t *testing.T) {
	h := newHarness(t)
	s := h.session

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	h.clock.WaitForTimers(1)
	s.Tick(Triggers{Record: true})
	require.Equal(t, StateStopping, s.State())

	s.Tick(Triggers{Record: true})
	assert.Equal(t, StateStopping, s.State())
	assert.False(t, s.Snapshot().PendingRecord)

	settle(t, s, h.clock)
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionStopCancelsPlayback(t *testing.T) {
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}, {{DX: 2}}, {{DX: 3}}, {{DX: 4}}})
	s := h.session

	s.RequestPlayback()
	s.Tick(Triggers{})
	h.clock.WaitForTimers(1)
	h.clock.Advance(testQuantum)
	h.clock.WaitForTimers(1)

	s.RequestStop()
	s.Tick(Triggers{})
	settle(t, s, h.clock)

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []Movement{{DX: 1}}, h.sink.Moves())
}

func TestSessionStopEndsRecording(t *testing.T) {
	h := newHarness(t)
	s := h.session

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	h.clock.WaitForTimers(1)
	h.source.Push(Movement{DX: 5})
	h.clock.Advance(testQuantum)
	h.clock.WaitForTimers(1)

	s.Tick(Triggers{Stop: true})
	settle(t, s, h.clock)

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, s.Snapshot().Samples)
}

func TestSessionSourceFailureIsReported(t *testing.T) {
	boom := errors.New("read /dev/input/event3: no such device")
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}})
	s := h.session

	s.RequestRecordToggle()
	s.Tick(Triggers{})
	h.clock.WaitForTimers(1)
	h.source.Fail(boom)
	h.clock.Advance(testQuantum)
	settle(t, s, h.clock)

	assert.Equal(t, StateIdle, s.State())
	require.Len(t, h.Errors(), 1)
	assert.ErrorIs(t, h.Errors()[0], boom)
	// The previous recording survives a failed capture.
	assert.Equal(t, 1, s.Snapshot().Samples)
}

func TestSessionSinkFailureIsReported(t *testing.T) {
	boom := errors.New("write /dev/uinput: broken pipe")
	h := newHarness(t)
	h.record(t, [][]Movement{{{DX: 1}}, {{DX: 2}}})
	h.sink.err = boom

	h.session.RequestPlayback()
	h.session.Tick(Triggers{})
	settle(t, h.session, h.clock)

	assert.Equal(t, StateIdle, h.session.State())
	require.Len(t, h.Errors(), 1)
	assert.ErrorIs(t, h.Errors()[0], boom)
}

func TestSessionNeverRecordsAndPlaysAtOnce(t *testing.T) {
	h := newHarness(t)
	s := h.session
	s.buffer = Recording{{DX: 1}, {}, {DY: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	var violations atomic.Int32
	var wg sync.WaitGroup

	// Flags only become true under the transition lock, so reading both
	// while holding it cannot produce a false positive.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			s.transition.Lock()
			if s.recording.Load() && s.playing.Load() {
				violations.Add(1)
			}
			s.transition.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if h.clock.PendingCount() > 0 {
				h.clock.Advance(testQuantum)
			}
		}
	}()

	var triggers sync.WaitGroup
	for i := 0; i < 4; i++ {
		triggers.Add(1)
		go func(i int) {
			defer triggers.Done()
			for n := 0; n < 300; n++ {
				switch (i + n) % 3 {
				case 0:
					s.RequestRecordToggle()
				case 1:
					s.RequestPlayback()
				}
				s.Tick(Triggers{Playback: n%5 == 0, Record: n%7 == 0})
			}
		}(i)
	}
	triggers.Wait()

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}
	cancel()
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionClosedIgnoresTicks(t *testing.T) {
	h := newHarness(t)
	h.session.Close()

	h.session.RequestRecordToggle()
	h.session.Tick(Triggers{})
	assert.Equal(t, StateIdle, h.session.State())
	assert.Zero(t, h.clock.PendingCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "recording", StateRecording.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "State(9)", State(9).String())
}
