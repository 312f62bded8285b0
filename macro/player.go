package macro

import (
	"fmt"
	"time"

	"Retrace/clock"
)

// Player injects a Recording through a Sink at one sample per quantum.
type Player struct {
	sink    Sink
	clock   clock.Clock
	quantum time.Duration
}

// NewPlayer returns a Player pacing sink at quantum.
func NewPlayer(sink Sink, clk clock.Clock, quantum time.Duration) *Player {
	return &Player{sink: sink, clock: clk, quantum: quantum}
}

// Play replays rec and returns how many samples were consumed. Sample i
// is due at start+(i+1)*quantum; when that time has already passed the
// wait is skipped rather than made up later. Play stops as soon as
// active reports false. Zero samples are never injected.
func (p *Player) Play(rec Recording, active func() bool) (int, error) {
	start := p.clock.Now()
	for i, m := range rec {
		clock.SleepUntil(p.clock, start.Add(time.Duration(i+1)*p.quantum))
		if !active() {
			return i, nil
		}
		if m.IsZero() {
			continue
		}
		if err := p.sink.Inject(m); err != nil {
			return i, fmt.Errorf("inject sample %d: %w", i, err)
		}
	}
	return len(rec), nil
}
