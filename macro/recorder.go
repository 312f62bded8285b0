package macro

import (
	"fmt"
	"time"

	"Retrace/clock"
)

// Recorder aggregates the deltas of a Source into one Movement per
// quantum.
type Recorder struct {
	source  Source
	clock   clock.Clock
	quantum time.Duration
}

// NewRecorder returns a Recorder sampling source every quantum.
func NewRecorder(source Source, clk clock.Clock, quantum time.Duration) *Recorder {
	return &Recorder{source: source, clock: clk, quantum: quantum}
}

// Record captures until active reports false and returns the samples.
//
// Quantum boundaries are absolute offsets from the call time, so a late
// wakeup shortens the next wait instead of shifting every later sample.
// active is checked before each quantum and again at its boundary; a
// quantum that ends after recording was switched off is discarded, so
// a recording stopped before its first boundary is empty.
func (r *Recorder) Record(active func() bool) (Recording, error) {
	// Motion buffered before the first boundary belongs to no quantum.
	if _, err := r.source.Drain(); err != nil {
		return nil, fmt.Errorf("drain source: %w", err)
	}

	var rec Recording
	start := r.clock.Now()
	for i := 1; active(); i++ {
		clock.SleepUntil(r.clock, start.Add(time.Duration(i)*r.quantum))
		if !active() {
			break
		}

		deltas, err := r.source.Drain()
		if err != nil {
			return nil, fmt.Errorf("drain source: %w", err)
		}
		var sample Movement
		for _, d := range deltas {
			sample = sample.Add(d)
		}
		rec = append(rec, sample)
	}
	return rec, nil
}
