package macro

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Retrace/clock"
)

type playResult struct {
	played int
	err    error
}

func startPlay(p *Player, rec Recording, active func() bool) <-chan playResult {
	done := make(chan playResult, 1)
	go func() {
		played, err := p.Play(rec, active)
		done <- playResult{played, err}
	}()
	return done
}

func always() bool { return true }

func TestPlayerInjectsAtQuantumBoundaries(t *testing.T) {
	c := clock.Fake(epoch)
	sink := newFakeSink(c)
	p := NewPlayer(sink, c, testQuantum)
	rec := Recording{{DX: 1}, {}, {DX: 2, DY: 2}, {}, {DX: -1, DY: 1}}

	done := startPlay(p, rec, always)
	for range rec {
		c.WaitForTimers(1)
		c.Advance(testQuantum)
	}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, len(rec), res.played)
	assert.Equal(t, []injection{
		{Move: Movement{DX: 1}, At: epoch.Add(1 * testQuantum)},
		{Move: Movement{DX: 2, DY: 2}, At: epoch.Add(3 * testQuantum)},
		{Move: Movement{DX: -1, DY: 1}, At: epoch.Add(5 * testQuantum)},
	}, sink.Injected())
}

func TestPlayerReplaysExactlyNonZeroSamples(t *testing.T) {
	recordings := []Recording{
		{{DX: 3, DY: -4}},
		{{}, {}, {}},
		{{DX: 1}, {DX: 1}, {}, {DY: -9}, {DX: 0, DY: 1}},
		{{DX: -2147483648, DY: 2147483647}, {}},
	}
	for _, rec := range recordings {
		c := clock.Fake(epoch)
		sink := newFakeSink(c)
		p := NewPlayer(sink, c, testQuantum)

		done := make(chan struct{})
		var res playResult
		go func() {
			res.played, res.err = p.Play(rec, always)
			close(done)
		}()
		advanceUntil(t, c, done)

		require.NoError(t, res.err)
		var want []Movement
		for _, m := range rec {
			if !m.IsZero() {
				want = append(want, m)
			}
		}
		assert.Equal(t, want, sink.Moves())
	}
}

func TestPlayerEmptyRecordingReturnsImmediately(t *testing.T) {
	c := clock.Fake(epoch)
	sink := newFakeSink(c)
	p := NewPlayer(sink, c, testQuantum)

	played, err := p.Play(nil, always)
	require.NoError(t, err)
	assert.Zero(t, played)
	assert.Empty(t, sink.Injected())
	assert.Zero(t, c.PendingCount())
}

func TestPlayerSkipsOverdueWaits(t *testing.T) {
	c := clock.Fake(epoch)
	sink := newFakeSink(c)
	p := NewPlayer(sink, c, testQuantum)
	rec := Recording{{DX: 1}, {DX: 2}, {DX: 3}, {DX: 4}}

	done := startPlay(p, rec, always)
	c.WaitForTimers(1)
	c.Advance(10 * testQuantum)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 4, res.played)
	case <-time.After(5 * time.Second):
		t.Fatal("player kept sleeping on overdue samples")
	}
	for _, in := range sink.Injected() {
		assert.Equal(t, epoch.Add(10*testQuantum), in.At)
	}
	assert.Len(t, sink.Injected(), 4)
}

func TestPlayerStopsWhenInactive(t *testing.T) {
	c := clock.Fake(epoch)
	sink := newFakeSink(c)
	p := NewPlayer(sink, c, testQuantum)
	rec := Recording{{DX: 1}, {DX: 2}, {DX: 3}, {DX: 4}}

	var checks atomic.Int32
	active := func() bool { return checks.Add(1) <= 2 }

	done := startPlay(p, rec, active)
	for i := 0; i < 3; i++ {
		c.WaitForTimers(1)
		c.Advance(testQuantum)
	}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.played)
	assert.Equal(t, []Movement{{DX: 1}, {DX: 2}}, sink.Moves())
}

func TestPlayerReturnsSinkError(t *testing.T) {
	boom := errors.New("uinput closed")
	c := clock.Fake(epoch)
	sink := newFakeSink(c)
	sink.err = boom
	p := NewPlayer(sink, c, testQuantum)

	done := startPlay(p, Recording{{}, {DX: 1}, {DX: 2}}, always)
	c.WaitForTimers(1)
	c.Advance(testQuantum)
	c.WaitForTimers(1)
	c.Advance(testQuantum)

	res := <-done
	require.ErrorIs(t, res.err, boom)
	assert.Equal(t, 1, res.played)
}
