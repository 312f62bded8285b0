package macro

import "time"

// Movement is the relative pointer delta accumulated during one quantum.
// The zero Movement means "no motion this quantum".
type Movement struct {
	DX int32
	DY int32
}

// Add returns the component-wise sum of m and o.
func (m Movement) Add(o Movement) Movement {
	return Movement{DX: m.DX + o.DX, DY: m.DY + o.DY}
}

// IsZero reports whether m carries no motion.
func (m Movement) IsZero() bool {
	return m.DX == 0 && m.DY == 0
}

// Recording is one captured session: element i is the motion of
// quantum i, in replay order.
type Recording []Movement

// Duration returns how long the recording takes to replay.
func (r Recording) Duration(quantum time.Duration) time.Duration {
	return time.Duration(len(r)) * quantum
}

// Moves returns the number of samples that carry motion.
func (r Recording) Moves() int {
	n := 0
	for _, m := range r {
		if !m.IsZero() {
			n++
		}
	}
	return n
}

// Source yields the raw pointer deltas the OS delivered since the last
// call. Drain must not block; it returns an empty slice when nothing is
// pending.
type Source interface {
	Drain() ([]Movement, error)
}

// Sink reproduces a single delta as a synthetic pointer movement.
type Sink interface {
	Inject(Movement) error
}

// Triggers are the user intents observed by a trigger source since its
// previous poll.
type Triggers struct {
	Record   bool
	Playback bool
	Stop     bool
}

// Merge returns the union of t and o.
func (t Triggers) Merge(o Triggers) Triggers {
	return Triggers{
		Record:   t.Record || o.Record,
		Playback: t.Playback || o.Playback,
		Stop:     t.Stop || o.Stop,
	}
}

// Trigger is polled by the scheduler on every tick, typically a global
// hotkey reader.
type Trigger interface {
	Poll() Triggers
}

// TriggerFunc adapts a function to the Trigger interface.
type TriggerFunc func() Triggers

// Poll calls f.
func (f TriggerFunc) Poll() Triggers { return f() }
